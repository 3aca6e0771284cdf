package rotation

import (
	"context"
	"crypto/rand"
	"fmt"
)

const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#%^*-_=+"

// DefaultPasswordLength is used when the service configuration does not set
// one.
const DefaultPasswordLength = 32

// PasswordRotator generates random passwords for generic password
// providers.
type PasswordRotator struct {
	length  int
	allowed []string
}

// NewPasswordRotator creates a password rotator. length <= 0 selects the
// default; keys restricts which secret keys the rotator manages (empty
// means all).
func NewPasswordRotator(length int, keys []string) *PasswordRotator {
	if length <= 0 {
		length = DefaultPasswordLength
	}
	return &PasswordRotator{length: length, allowed: keys}
}

func (r *PasswordRotator) Kind() Kind { return KindPassword }

func (r *PasswordRotator) Rotate(ctx context.Context, key string) (string, error) {
	if !keyAllowed(r.allowed, key) {
		return "", &Error{Kind: ErrNotSupported, Key: key}
	}
	return randomFromCharset(passwordCharset, r.length)
}

// randomFromCharset draws length cryptographically random characters.
func randomFromCharset(charset string, length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i := range raw {
		raw[i] = charset[raw[i]%byte(len(charset))]
	}
	return string(raw), nil
}
