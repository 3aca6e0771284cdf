package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/credops/internal/config"
	cerrors "github.com/systmms/credops/internal/errors"
	"github.com/systmms/credops/pkg/rotation"
)

type scheduleEntry struct {
	Service string `json:"service"`
	rotation.KeySchedule
}

// NewScheduleCommand creates the 'schedule' command: report when each key
// last rotated and when it is next due, without rotating anything.
func NewScheduleCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the rotation schedule for all configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			auditLog, closeAudit, err := buildAuditLog(cfg)
			if err != nil {
				return err
			}
			defer closeAudit()

			engine, err := buildEngine(cfg, auditLog, "")
			if err != nil {
				return err
			}

			now := time.Now()
			var entries []scheduleEntry
			for _, policy := range engine.Policies() {
				for _, ks := range policy.Snapshot(now) {
					entries = append(entries, scheduleEntry{Service: policy.Service, KeySchedule: ks})
				}
			}

			if output != "" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return cerrors.UserError{
						Message:    "Failed to write schedule report",
						Details:    err.Error(),
						Suggestion: "Check the --output path",
						Err:        err,
					}
				}
				defer f.Close()
				enc := json.NewEncoder(f)
				enc.SetIndent("", "  ")
				if err := enc.Encode(entries); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tKEY\tLAST ROTATION\tNEXT ROTATION\tDUE")
			for _, e := range entries {
				last, next := "never", "now"
				if e.LastRotation != nil {
					last = e.LastRotation.UTC().Format(time.RFC3339)
				}
				if e.NextRotation != nil {
					next = e.NextRotation.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\n", e.Service, e.Key, last, next, e.Due)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Write the schedule as JSON to this file")

	return cmd
}
