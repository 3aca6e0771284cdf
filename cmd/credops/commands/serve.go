package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/systmms/credops/internal/authmw"
	"github.com/systmms/credops/internal/config"
	"github.com/systmms/credops/internal/credential"
	cerrors "github.com/systmms/credops/internal/errors"
	"github.com/systmms/credops/internal/httpapi"
	"github.com/systmms/credops/internal/metrics"
	"github.com/systmms/credops/pkg/rotation"
)

// NewServeCommand creates the 'serve' command: the HTTP credential service
// with the background sweeper and rotation scheduler.
func NewServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the credential service with sweeper and rotation scheduler",
		Long: `Serve the credential HTTP API. Alongside the listener, a sweeper removes
expired credentials and the rotation scheduler runs engine cycles on the
configured interval. SIGINT/SIGTERM triggers a graceful drain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	return cmd
}

func buildCredentialStore(cfg *config.Config) (credential.Store, error) {
	def := cfg.Definition
	if def.Store.Type == "sqlite" {
		db, err := credential.OpenSQLite(def.Store.Path)
		if err != nil {
			return nil, cerrors.UserError{
				Message:    "Failed to open credential database",
				Details:    err.Error(),
				Suggestion: "Check store.path and that its directory exists",
				Err:        err,
			}
		}
		return credential.NewGormStore(db)
	}
	return credential.NewMemoryStore(), nil
}

func runServe(cfg *config.Config) error {
	def := cfg.Definition
	metrics.Init()

	auditLog, closeAudit, err := buildAuditLog(cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	store, err := buildCredentialStore(cfg)
	if err != nil {
		return err
	}

	vocab := credential.DefaultVocabulary()
	if len(def.Auth.Vocabulary) > 0 {
		vocab = credential.NewVocabulary(def.Auth.Vocabulary...)
	}

	issuer := credential.NewIssuer(store, vocab, cfg.Logger, auditLog)
	validator := credential.NewValidator(store)
	sweeper := credential.NewSweeper(store, def.Sweeper.Interval.Std(), def.Sweeper.GracePeriod.Std(), cfg.Logger, auditLog)

	rules := make([]authmw.Rule, 0, len(def.Auth.Routes))
	for _, route := range def.Auth.Routes {
		rules = append(rules, authmw.Rule{Path: route.Path, Scopes: route.Scopes})
	}
	exclusions := def.Auth.Exclusions
	if len(exclusions) == 0 {
		exclusions = []string{"/healthz", "/metrics"}
	}
	auth := authmw.New(validator, authmw.NewRouteTable(rules, exclusions), cfg.Logger, auditLog)

	handler := httpapi.NewHandler(issuer, store, cfg.Logger, auditLog)
	server := &http.Server{
		Addr:              def.Listen,
		Handler:           httpapi.NewRouter(handler, auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	engine, err := buildEngine(cfg, auditLog, "")
	if err != nil {
		return err
	}
	scheduler := rotation.NewScheduler(engine, def.Rotation.Interval.Std(), def.Rotation.DrainTimeout.Std(), cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		cfg.Logger.Info("Listening on %s", def.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	group.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	group.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	if err := group.Wait(); err != nil {
		return cerrors.UserError{
			Message: "Service exited with an error",
			Details: err.Error(),
			Err:     err,
		}
	}
	cfg.Logger.Info("Shutdown complete")
	return nil
}
