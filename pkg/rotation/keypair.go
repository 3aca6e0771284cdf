package rotation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// KeypairRotator generates fresh ed25519 signing keys for keypair
// providers. The rotated value is the PEM-encoded PKCS#8 private key; the
// public half is derivable from it by consumers.
type KeypairRotator struct {
	allowed []string
}

// NewKeypairRotator creates a keypair rotator managing the given keys.
func NewKeypairRotator(keys []string) *KeypairRotator {
	return &KeypairRotator{allowed: keys}
}

func (r *KeypairRotator) Kind() Kind { return KindKeypair }

func (r *KeypairRotator) Rotate(ctx context.Context, key string) (string, error) {
	if !keyAllowed(r.allowed, key) {
		return "", &Error{Kind: ErrNotSupported, Key: key}
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate keypair: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("failed to encode private key: %w", err)
	}

	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}
