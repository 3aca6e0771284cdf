// Package credential implements the ephemeral credential lifecycle: issue,
// validate, revoke, and sweep. The presented token value is never stored;
// only its one-way lookup key maps back to the credential record.
package credential

import (
	"errors"
	"fmt"
	"time"
)

// Type classifies a credential.
type Type string

const (
	TypeAPIKey       Type = "api_key"
	TypeAccessToken  Type = "access_token"
	TypeServiceToken Type = "service_token"
	TypeSessionToken Type = "session_token"
)

// Valid reports whether t is a recognized credential type.
func (t Type) Valid() bool {
	switch t {
	case TypeAPIKey, TypeAccessToken, TypeServiceToken, TypeSessionToken:
		return true
	}
	return false
}

// Metadata carries optional ownership information attached at issuance.
type Metadata struct {
	UserID    string `json:"user_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	ServiceID string `json:"service_id,omitempty"`
}

// Credential is the stored record for an issued token. Scopes are immutable
// after issuance; Revoked can only transition false to true.
type Credential struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	Scopes        []string  `json:"scopes"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Revoked       bool      `json:"revoked"`
	RevokedReason string    `json:"revoked_reason,omitempty"`
	Metadata      Metadata  `json:"metadata"`
}

// Expired reports whether the credential has passed its expiry at now.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// HasScopes reports whether every required scope is present on the
// credential. An empty requirement always passes.
func (c Credential) HasScopes(required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range c.Scopes {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Vocabulary is the set of scope names the issuer recognizes.
type Vocabulary map[string]struct{}

// NewVocabulary builds a vocabulary from scope names.
func NewVocabulary(scopes ...string) Vocabulary {
	v := make(Vocabulary, len(scopes))
	for _, s := range scopes {
		v[s] = struct{}{}
	}
	return v
}

// DefaultVocabulary covers the scopes the bundled service understands.
func DefaultVocabulary() Vocabulary {
	return NewVocabulary("read", "write", "admin", "rotate")
}

// Contains reports whether the scope is recognized.
func (v Vocabulary) Contains(scope string) bool {
	_, ok := v[scope]
	return ok
}

// ErrNotFound is returned when a credential id or token has no record.
var ErrNotFound = errors.New("credential not found")

// ErrInvalidTTL is returned when issuance is requested with a non-positive
// lifetime.
var ErrInvalidTTL = errors.New("ttl must be positive")

// ErrEmptyScopes is returned when issuance is requested without any scopes.
var ErrEmptyScopes = errors.New("at least one scope is required")

// InvalidScopeError reports a scope outside the recognized vocabulary.
type InvalidScopeError struct {
	Scope string
}

func (e InvalidScopeError) Error() string {
	return fmt.Sprintf("unrecognized scope %q", e.Scope)
}

// StorageError wraps a failed durable write. The issuer never hands out a
// token whose record failed to persist.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("credential storage failure during %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}
