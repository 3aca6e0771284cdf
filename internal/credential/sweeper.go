package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/internal/logging"
	"github.com/systmms/credops/internal/metrics"
)

// Sweeper removes credentials whose expiry lies further in the past than the
// grace period. Revoked-but-unexpired records are deliberately kept so they
// stay queryable for audit until natural expiry.
type Sweeper struct {
	store    Store
	interval time.Duration
	grace    time.Duration
	logger   *logging.Logger
	auditLog *audit.Log
	now      func() time.Time
}

// NewSweeper creates a sweeper. interval is how often Run sweeps; grace is
// how long expired records are retained before physical deletion.
func NewSweeper(store Store, interval, grace time.Duration, logger *logging.Logger, auditLog *audit.Log) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		grace:    grace,
		logger:   logger,
		auditLog: auditLog,
		now:      time.Now,
	}
}

// Sweep removes every credential past expiry plus grace and returns the
// count removed. The store is never locked across the full scan: candidate
// ids are snapshotted first, then removed one by one, each removal
// re-checking the cutoff.
func (s *Sweeper) Sweep() int {
	cutoff := s.now().Add(-s.grace)

	removed := 0
	for _, id := range s.store.ExpiredIDs(cutoff) {
		if s.store.Remove(id, cutoff) {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Sweeper removed %d expired credentials", removed)
		s.auditLog.Record(audit.EventCredentialSweep, "expired credentials removed", map[string]string{
			"removed": fmt.Sprintf("%d", removed),
		})
		metrics.RecordSwept(removed)
	}
	return removed
}

// Run sweeps on a timer until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
