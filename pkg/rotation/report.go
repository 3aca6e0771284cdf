package rotation

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"
)

// Outcome is the result class of one (service, key) consideration.
type Outcome string

const (
	OutcomeRotated Outcome = "rotated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Record is one append-only audit entry for a considered key. Records are
// never mutated after being added to a report.
type Record struct {
	Service   string    `json:"service"`
	Key       string    `json:"key"`
	RotatedAt time.Time `json:"rotated_at"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

// Report aggregates the records of one engine cycle.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Records    []Record  `json:"records"`

	mu sync.Mutex
}

func (r *Report) append(rec Record) {
	r.mu.Lock()
	r.Records = append(r.Records, rec)
	r.mu.Unlock()
}

// Counts is the per-service outcome tally.
type Counts struct {
	Rotated int `json:"rotated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// PerService tallies outcomes by service name.
func (r *Report) PerService() map[string]Counts {
	out := make(map[string]Counts)
	for _, rec := range r.Records {
		c := out[rec.Service]
		switch rec.Outcome {
		case OutcomeRotated:
			c.Rotated++
		case OutcomeSkipped:
			c.Skipped++
		case OutcomeFailed:
			c.Failed++
		}
		out[rec.Service] = c
	}
	return out
}

// HasFailures reports whether any record failed. The CLI exits non-zero in
// that case.
func (r *Report) HasFailures() bool {
	for _, rec := range r.Records {
		if rec.Outcome == OutcomeFailed {
			return true
		}
	}
	return false
}

// WriteTable renders the per-service summary as an aligned table.
func (r *Report) WriteTable(w io.Writer) error {
	counts := r.PerService()
	services := make([]string, 0, len(counts))
	for name := range counts {
		services = append(services, name)
	}
	sort.Strings(services)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tROTATED\tSKIPPED\tFAILED")
	for _, name := range services {
		c := counts[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", name, c.Rotated, c.Skipped, c.Failed)
	}
	return tw.Flush()
}

// WriteJSON renders the full report, including per-record details.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
