package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/internal/logging"
	"github.com/systmms/credops/internal/metrics"
)

const tokenLength = 40

const tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var tokenPrefixes = map[Type]string{
	TypeAPIKey:       "ak",
	TypeAccessToken:  "at",
	TypeServiceToken: "st",
	TypeSessionToken: "sn",
}

// LookupKey derives the one-way store key for a presented token value. The
// raw token is never stored in reversible form.
func LookupKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issuer creates credentials and persists them before the token is released
// to the caller.
type Issuer struct {
	store    Store
	vocab    Vocabulary
	logger   *logging.Logger
	auditLog *audit.Log
	now      func() time.Time
}

// NewIssuer creates an issuer over the given store and scope vocabulary.
func NewIssuer(store Store, vocab Vocabulary, logger *logging.Logger, auditLog *audit.Log) *Issuer {
	return &Issuer{
		store:    store,
		vocab:    vocab,
		logger:   logger,
		auditLog: auditLog,
		now:      time.Now,
	}
}

// Issue creates a credential and returns its id together with the opaque
// token value. The token is returned exactly once; only its lookup key is
// retained. No token is handed out if the durable write fails.
func (i *Issuer) Issue(typ Type, scopes []string, ttl time.Duration, meta Metadata) (string, string, error) {
	if !typ.Valid() {
		return "", "", fmt.Errorf("unknown credential type %q", typ)
	}
	if ttl <= 0 {
		return "", "", ErrInvalidTTL
	}
	if len(scopes) == 0 {
		return "", "", ErrEmptyScopes
	}
	for _, scope := range scopes {
		if !i.vocab.Contains(scope) {
			return "", "", InvalidScopeError{Scope: scope}
		}
	}

	token, err := newToken(typ)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := i.now()
	cred := Credential{
		ID:        uuid.NewString(),
		Type:      typ,
		Scopes:    append([]string(nil), scopes...),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Metadata:  meta,
	}

	if err := i.store.Put(LookupKey(token), cred); err != nil {
		return "", "", StorageError{Op: "issue", Err: err}
	}

	i.logger.Debug("Issued %s credential %s with scopes %v", typ, cred.ID, scopes)
	i.auditLog.Record(audit.EventCredentialIssue, "credential issued", map[string]string{
		"credential_id": cred.ID,
		"type":          string(typ),
		"expires_at":    cred.ExpiresAt.UTC().Format(time.RFC3339),
	})
	metrics.RecordIssued()

	return cred.ID, token, nil
}

// newToken builds an opaque token value: a short type prefix plus
// cryptographically random characters.
func newToken(typ Type) (string, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	for idx := range raw {
		raw[idx] = tokenCharset[raw[idx]%byte(len(tokenCharset))]
	}
	return tokenPrefixes[typ] + "_" + string(raw), nil
}
