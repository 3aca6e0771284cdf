package credential

import (
	"time"

	"github.com/systmms/credops/internal/metrics"
)

// Reason describes why validation failed. Callers outside the audit log only
// ever see a generic failure; the reason feeds the audit trail.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonExpired           Reason = "expired"
	ReasonRevoked           Reason = "revoked"
	ReasonInsufficientScope Reason = "insufficient_scope"
)

// Result is the structured outcome of a validation. It is returned as a
// value, never raised, across the middleware boundary.
type Result struct {
	Valid        bool
	CredentialID string
	Scopes       []string
	Reason       Reason
}

// Validator checks presented tokens against the store. Validate performs a
// single hash-map lookup plus comparisons: no I/O, safe under many
// concurrent requests.
type Validator struct {
	store Store
	now   func() time.Time
}

// NewValidator creates a validator over the given store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store, now: time.Now}
}

// Validate resolves the token and checks expiry, revocation, and scopes.
// Expiry is checked before revocation so an expired credential reports
// expired regardless of its revocation state.
func (v *Validator) Validate(token string, requiredScopes []string) Result {
	cred, ok := v.store.Lookup(LookupKey(token))
	if !ok {
		metrics.RecordValidation(string(ReasonNotFound))
		return Result{Reason: ReasonNotFound}
	}

	if cred.Expired(v.now()) {
		metrics.RecordValidation(string(ReasonExpired))
		return Result{CredentialID: cred.ID, Reason: ReasonExpired}
	}

	if cred.Revoked {
		metrics.RecordValidation(string(ReasonRevoked))
		return Result{CredentialID: cred.ID, Reason: ReasonRevoked}
	}

	if !cred.HasScopes(requiredScopes) {
		metrics.RecordValidation(string(ReasonInsufficientScope))
		return Result{CredentialID: cred.ID, Reason: ReasonInsufficientScope}
	}

	metrics.RecordValidation("valid")
	return Result{
		Valid:        true,
		CredentialID: cred.ID,
		Scopes:       cred.Scopes,
	}
}
