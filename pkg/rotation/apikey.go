package rotation

import (
	"context"
)

const apiKeyCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultAPIKeyLength is the random suffix length for generated API keys.
const DefaultAPIKeyLength = 40

// APIKeyRotator generates prefixed opaque keys for API-key providers, e.g.
// "sk_3fJ...".
type APIKeyRotator struct {
	prefix  string
	length  int
	allowed []string
}

// NewAPIKeyRotator creates an API-key rotator. An empty prefix produces
// bare random keys.
func NewAPIKeyRotator(prefix string, length int, keys []string) *APIKeyRotator {
	if length <= 0 {
		length = DefaultAPIKeyLength
	}
	return &APIKeyRotator{prefix: prefix, length: length, allowed: keys}
}

func (r *APIKeyRotator) Kind() Kind { return KindAPIKey }

func (r *APIKeyRotator) Rotate(ctx context.Context, key string) (string, error) {
	if !keyAllowed(r.allowed, key) {
		return "", &Error{Kind: ErrNotSupported, Key: key}
	}
	suffix, err := randomFromCharset(apiKeyCharset, r.length)
	if err != nil {
		return "", err
	}
	if r.prefix == "" {
		return suffix, nil
	}
	return r.prefix + "_" + suffix, nil
}
