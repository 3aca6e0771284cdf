package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/systmms/credops/internal/config"
	cerrors "github.com/systmms/credops/internal/errors"
)

// NewRotateCommand creates the 'rotate' command: one rotation cycle, then
// exit.
func NewRotateCommand(cfg *config.Config) *cobra.Command {
	var (
		service string
		dryRun  bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Run one rotation cycle over the configured services",
		Long: `Run a single rotation cycle: every due key of every configured service is
rotated and published to the secret stores. Keys inside their interval are
skipped. The exit code is non-zero if any rotation failed.

Examples:
  # Rotate everything that is due
  credops rotate

  # Rotate a single service
  credops rotate --service vault

  # Show what would rotate without touching anything
  credops rotate --dry-run

  # Keep the full per-key report
  credops rotate --output report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			auditLog, closeAudit, err := buildAuditLog(cfg)
			if err != nil {
				return err
			}
			defer closeAudit()

			engine, err := buildEngine(cfg, auditLog, service)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report := engine.RunCycle(ctx, dryRun)
			if err := report.WriteTable(cmd.OutOrStdout()); err != nil {
				return err
			}

			if output != "" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return cerrors.UserError{
						Message:    "Failed to write rotation report",
						Details:    err.Error(),
						Suggestion: "Check the --output path",
						Err:        err,
					}
				}
				defer f.Close()
				if err := report.WriteJSON(f); err != nil {
					return err
				}
			}

			if report.HasFailures() {
				return cerrors.UserError{
					Message:    "One or more rotations failed",
					Suggestion: "Inspect the audit log for per-key details; failed keys retry next cycle",
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "all", "Service to rotate, or 'all'")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report due keys without rotating")
	cmd.Flags().StringVar(&output, "output", "", "Write the full JSON report to this file")

	return cmd
}
