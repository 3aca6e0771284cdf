// Package config loads and validates the credops.yaml definition file. A
// .env file next to the configuration is overlaid onto the process
// environment first, so values like webhook endpoints can use ${VAR}
// references.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	cerrors "github.com/systmms/credops/internal/errors"
	"github.com/systmms/credops/internal/logging"
)

// Config holds the runtime configuration.
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the credops.yaml structure.
type Definition struct {
	Version int    `yaml:"version"`
	Listen  string `yaml:"listen,omitempty"`

	Auth         AuthConfig                   `yaml:"auth,omitempty"`
	Sweeper      SweeperConfig                `yaml:"sweeper,omitempty"`
	Store        StoreConfig                  `yaml:"store,omitempty"`
	Audit        AuditConfig                  `yaml:"audit,omitempty"`
	SecretStores map[string]SecretStoreConfig `yaml:"secretStores,omitempty"`
	Rotation     RotationConfig               `yaml:"rotation,omitempty"`
}

// AuthConfig drives the request authentication middleware.
type AuthConfig struct {
	// Vocabulary lists the scopes credentials may carry. Empty selects the
	// built-in vocabulary.
	Vocabulary []string `yaml:"vocabulary,omitempty"`

	// Exclusions are paths served without authentication.
	Exclusions []string `yaml:"exclusions,omitempty"`

	// Routes maps paths to required scopes. A trailing "/" makes the path a
	// prefix rule.
	Routes []RouteConfig `yaml:"routes,omitempty"`
}

// RouteConfig is one path-to-scopes rule.
type RouteConfig struct {
	Path   string   `yaml:"path"`
	Scopes []string `yaml:"scopes"`
}

// SweeperConfig controls expired-credential cleanup.
type SweeperConfig struct {
	Interval    Duration `yaml:"interval,omitempty"`
	GracePeriod Duration `yaml:"grace_period,omitempty"`
}

// StoreConfig selects the credential registry backend.
type StoreConfig struct {
	Type string `yaml:"type,omitempty"` // memory or sqlite
	Path string `yaml:"path,omitempty"`
}

// AuditConfig selects audit sinks beyond the default logger sink.
type AuditConfig struct {
	File string `yaml:"file,omitempty"`
}

// SecretStoreConfig holds one publish target.
type SecretStoreConfig struct {
	Type string `yaml:"type"` // memory or file
	Path string `yaml:"path,omitempty"`
}

// RotationConfig drives the rotation engine and scheduler.
type RotationConfig struct {
	Interval      Duration                 `yaml:"interval,omitempty"`
	MaxParallel   int                      `yaml:"max_parallel,omitempty"`
	RotateTimeout Duration                 `yaml:"rotate_timeout,omitempty"`
	DrainTimeout  Duration                 `yaml:"drain_timeout,omitempty"`
	StateFile     string                   `yaml:"state_file,omitempty"`
	Services      map[string]ServiceConfig `yaml:"services,omitempty"`
}

// ServiceConfig holds one rotated service.
type ServiceConfig struct {
	Rotator  string   `yaml:"rotator"`
	Interval Duration `yaml:"interval"`
	Keys     []string `yaml:"keys"`

	// Rotator-specific options.
	Length   int    `yaml:"length,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Duration wraps time.Duration for YAML fields written as "30s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults applied by Load when the definition leaves a field unset.
const (
	DefaultListen          = ":8080"
	DefaultSweepInterval   = time.Minute
	DefaultGracePeriod     = 5 * time.Minute
	DefaultRotateInterval  = time.Hour
	DefaultRotateTimeout   = 30 * time.Second
	DefaultDrainTimeout    = 30 * time.Second
	DefaultRotateParallel  = 4
	DefaultStoreType       = "memory"
	DefaultSecretStoreType = "memory"
)

// Load reads and parses the credops.yaml file, overlays a sibling .env file,
// applies defaults, and validates the result.
func (c *Config) Load() error {
	// Best effort: a missing .env is the common case.
	envPath := filepath.Join(filepath.Dir(c.Path), ".env")
	if err := godotenv.Load(envPath); err == nil && c.Logger != nil {
		c.Logger.Debug("Loaded environment overlay from %s", envPath)
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return cerrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create a credops.yaml or pass --config with the file location",
			}
		}
		return cerrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	var def Definition
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &def); err != nil {
		return cerrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters",
		}
	}

	if def.Version != 0 {
		return cerrors.ConfigError{
			Field:      "version",
			Value:      def.Version,
			Message:    "unsupported configuration version",
			Suggestion: "Set 'version: 0' at the top of your credops.yaml file",
		}
	}

	applyDefaults(&def)
	if err := validate(&def); err != nil {
		return err
	}

	c.Definition = &def
	return nil
}

func applyDefaults(def *Definition) {
	if def.Listen == "" {
		def.Listen = DefaultListen
	}
	if def.Sweeper.Interval == 0 {
		def.Sweeper.Interval = Duration(DefaultSweepInterval)
	}
	if def.Sweeper.GracePeriod == 0 {
		def.Sweeper.GracePeriod = Duration(DefaultGracePeriod)
	}
	if def.Store.Type == "" {
		def.Store.Type = DefaultStoreType
	}
	if def.Rotation.Interval == 0 {
		def.Rotation.Interval = Duration(DefaultRotateInterval)
	}
	if def.Rotation.MaxParallel <= 0 {
		def.Rotation.MaxParallel = DefaultRotateParallel
	}
	if def.Rotation.RotateTimeout == 0 {
		def.Rotation.RotateTimeout = Duration(DefaultRotateTimeout)
	}
	if def.Rotation.DrainTimeout == 0 {
		def.Rotation.DrainTimeout = Duration(DefaultDrainTimeout)
	}
	for name, store := range def.SecretStores {
		if store.Type == "" {
			store.Type = DefaultSecretStoreType
			def.SecretStores[name] = store
		}
	}
}

func validate(def *Definition) error {
	if def.Store.Type != "memory" && def.Store.Type != "sqlite" {
		return cerrors.ConfigError{
			Field:      "store.type",
			Value:      def.Store.Type,
			Message:    "unknown credential store type",
			Suggestion: "Use 'memory' or 'sqlite'",
		}
	}
	if def.Store.Type == "sqlite" && def.Store.Path == "" {
		return cerrors.ConfigError{
			Field:      "store.path",
			Message:    "sqlite store requires a database path",
			Suggestion: "Set store.path to the database file location",
		}
	}

	for name, store := range def.SecretStores {
		if store.Type != "memory" && store.Type != "file" {
			return cerrors.ConfigError{
				Field:      fmt.Sprintf("secretStores.%s.type", name),
				Value:      store.Type,
				Message:    "unknown secret store type",
				Suggestion: "Use 'memory' or 'file'",
			}
		}
		if store.Type == "file" && store.Path == "" {
			return cerrors.ConfigError{
				Field:      fmt.Sprintf("secretStores.%s.path", name),
				Message:    "file secret store requires a base directory",
				Suggestion: "Set path to the directory secrets should be written under",
			}
		}
	}

	for i, route := range def.Auth.Routes {
		if route.Path == "" {
			return cerrors.ConfigError{
				Field:   fmt.Sprintf("auth.routes[%d].path", i),
				Message: "route rule requires a path",
			}
		}
		if len(route.Scopes) == 0 {
			return cerrors.ConfigError{
				Field:      fmt.Sprintf("auth.routes[%d].scopes", i),
				Message:    "route rule requires at least one scope",
				Suggestion: "List the scopes a credential needs for this path",
			}
		}
	}

	for name, svc := range def.Rotation.Services {
		if svc.Rotator == "" {
			return cerrors.ConfigError{
				Field:      fmt.Sprintf("rotation.services.%s.rotator", name),
				Message:    "service requires a rotator kind",
				Suggestion: "Use one of: password, apikey, keypair, webhook",
			}
		}
		if svc.Interval <= 0 {
			return cerrors.ConfigError{
				Field:      fmt.Sprintf("rotation.services.%s.interval", name),
				Value:      svc.Interval.Std().String(),
				Message:    "service requires a positive rotation interval",
				Suggestion: "Set interval to a duration like '24h'",
			}
		}
		if len(svc.Keys) == 0 {
			return cerrors.ConfigError{
				Field:      fmt.Sprintf("rotation.services.%s.keys", name),
				Message:    "service requires at least one key to rotate",
				Suggestion: "List the secret keys this service owns, e.g. [password]",
			}
		}
		if svc.Rotator == "webhook" && svc.Endpoint == "" {
			return cerrors.ConfigError{
				Field:      fmt.Sprintf("rotation.services.%s.endpoint", name),
				Message:    "webhook rotator requires an endpoint",
				Suggestion: "Set endpoint to the rotation webhook URL",
			}
		}
	}

	return nil
}
