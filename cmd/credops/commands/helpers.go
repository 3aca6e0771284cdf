package commands

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/internal/config"
	cerrors "github.com/systmms/credops/internal/errors"
	"github.com/systmms/credops/pkg/rotation"
	"github.com/systmms/credops/pkg/secretstore"
)

// buildAuditLog assembles the audit sinks from configuration: structured
// logging always, plus a JSON-lines file when audit.file is set. The
// returned closer flushes the file sink.
func buildAuditLog(cfg *config.Config) (*audit.Log, func(), error) {
	log := audit.NewLog(audit.NewSlogSink(slog.Default()))
	closer := func() {}

	if path := cfg.Definition.Audit.File; path != "" {
		sink, err := audit.NewFileSink(path)
		if err != nil {
			return nil, nil, cerrors.UserError{
				Message:    "Failed to open audit file",
				Details:    err.Error(),
				Suggestion: "Check the audit.file path and its directory permissions",
				Err:        err,
			}
		}
		log.AddSink(sink)
		closer = func() { _ = sink.Close() }
	}

	return log, closer, nil
}

// buildSecretStores constructs the configured publish targets in name order.
func buildSecretStores(cfg *config.Config) []secretstore.SecretStore {
	def := cfg.Definition
	names := make([]string, 0, len(def.SecretStores))
	for name := range def.SecretStores {
		names = append(names, name)
	}
	sort.Strings(names)

	stores := make([]secretstore.SecretStore, 0, len(names))
	for _, name := range names {
		sc := def.SecretStores[name]
		switch sc.Type {
		case "file":
			stores = append(stores, secretstore.NewFileStore(name, sc.Path))
		default:
			stores = append(stores, secretstore.NewMemoryStore(name))
		}
	}
	return stores
}

// buildEngine wires the rotation engine from configuration. only restricts
// registration to a single service name; empty means all. A service whose
// rotator cannot be built is skipped with a warning, never fatal.
func buildEngine(cfg *config.Config, auditLog *audit.Log, only string) (*rotation.Engine, error) {
	def := cfg.Definition

	publisher := secretstore.NewPublisher(cfg.Logger, buildSecretStores(cfg)...)
	engine := rotation.NewEngine(publisher, cfg.Logger, auditLog, rotation.EngineConfig{
		MaxParallel:   def.Rotation.MaxParallel,
		RotateTimeout: def.Rotation.RotateTimeout.Std(),
	})

	names := make([]string, 0, len(def.Rotation.Services))
	for name := range def.Rotation.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	if only != "" && only != "all" {
		if _, ok := def.Rotation.Services[only]; !ok {
			return nil, cerrors.UserError{
				Message:    fmt.Sprintf("Unknown service %q", only),
				Suggestion: "List configured services under rotation.services in credops.yaml",
				Details:    fmt.Sprintf("Configured services: %v", names),
			}
		}
		names = []string{only}
	}

	registry := rotation.NewRegistry()
	for _, name := range names {
		svc := def.Rotation.Services[name]
		rotator, err := registry.Create(rotation.Kind(svc.Rotator), rotation.Settings{
			Keys:     svc.Keys,
			Length:   svc.Length,
			Prefix:   svc.Prefix,
			Endpoint: svc.Endpoint,
		}, cfg.Logger)
		if err != nil {
			cfg.Logger.Warn("Skipping service %s: %v", name, err)
			continue
		}
		if err := engine.Register(rotation.NewPolicy(name, svc.Interval.Std(), svc.Keys), rotator); err != nil {
			return nil, err
		}
	}

	statePath := def.Rotation.StateFile
	if statePath == "" {
		statePath = rotation.DefaultStatePath()
	}
	if err := engine.SetStateStore(rotation.NewStateStore(statePath)); err != nil {
		return nil, cerrors.UserError{
			Message:    "Failed to load rotation schedule state",
			Details:    err.Error(),
			Suggestion: "Check the state file; delete it to start from a clean schedule",
			Err:        err,
		}
	}

	return engine, nil
}
