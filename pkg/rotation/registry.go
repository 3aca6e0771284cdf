package rotation

import (
	"fmt"
	"sort"

	"github.com/systmms/credops/internal/logging"
)

// Settings carries the per-service rotator options from configuration.
// Fields not used by a variant are ignored by its factory.
type Settings struct {
	// Keys restricts which secret keys the rotator manages. Empty means all.
	Keys []string

	// Length is the generated value length for password and apikey rotators.
	Length int

	// Prefix is prepended to generated API keys, e.g. "sk".
	Prefix string

	// Endpoint is the webhook rotator's HTTP endpoint.
	Endpoint string
}

// Factory builds a rotator from settings.
type Factory func(settings Settings, logger *logging.Logger) (ServiceRotator, error)

// Registry maps rotator kinds to factories, so configuration can select
// variants by name.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry creates a registry with all built-in rotator variants
// registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Kind]Factory)}

	r.RegisterFactory(KindPassword, func(s Settings, _ *logging.Logger) (ServiceRotator, error) {
		return NewPasswordRotator(s.Length, s.Keys), nil
	})
	r.RegisterFactory(KindAPIKey, func(s Settings, _ *logging.Logger) (ServiceRotator, error) {
		return NewAPIKeyRotator(s.Prefix, s.Length, s.Keys), nil
	})
	r.RegisterFactory(KindKeypair, func(s Settings, _ *logging.Logger) (ServiceRotator, error) {
		return NewKeypairRotator(s.Keys), nil
	})
	r.RegisterFactory(KindWebhook, func(s Settings, logger *logging.Logger) (ServiceRotator, error) {
		if s.Endpoint == "" {
			return nil, fmt.Errorf("webhook rotator requires an endpoint")
		}
		return NewWebhookRotator(s.Endpoint, logger, s.Keys), nil
	})

	return r
}

// RegisterFactory registers a factory for a rotator kind, replacing any
// existing registration.
func (r *Registry) RegisterFactory(kind Kind, factory Factory) {
	r.factories[kind] = factory
}

// Create builds a rotator of the given kind.
func (r *Registry) Create(kind Kind, settings Settings, logger *logging.Logger) (ServiceRotator, error) {
	factory, exists := r.factories[kind]
	if !exists {
		return nil, fmt.Errorf("unknown rotator kind %q (known: %v)", kind, r.Kinds())
	}
	return factory(settings, logger)
}

// Kinds lists the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.factories))
	for kind := range r.factories {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
