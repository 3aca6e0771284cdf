// Package rotation regenerates long-lived external secrets on a schedule.
// Each registered service pairs a Policy (when keys are due) with a
// ServiceRotator (how a new value is produced). The engine walks all pairs
// per cycle, publishes fresh values to the secret stores, and appends an
// audit record for every key it considers.
package rotation

import (
	"context"
)

// Kind identifies a rotator variant. Variants are selected from
// configuration through the strategy registry rather than subclassing.
type Kind string

const (
	KindPassword Kind = "password"
	KindAPIKey   Kind = "apikey"
	KindKeypair  Kind = "keypair"
	KindWebhook  Kind = "webhook"
)

// ServiceRotator produces a new secret value for one named key of a
// service. Implementations must be safe for concurrent use across services;
// the engine itself guarantees keys of a single service are rotated
// sequentially.
type ServiceRotator interface {
	// Kind returns the variant identifier.
	Kind() Kind

	// Rotate generates a new value for the key. A key the rotator does not
	// manage yields an Error of kind NotSupported, never a panic.
	Rotate(ctx context.Context, key string) (string, error)
}

// keyAllowed implements the shared supported-key check: an empty allow list
// accepts any key.
func keyAllowed(allowed []string, key string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if k == key {
			return true
		}
	}
	return false
}
