package rotation

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRotator(t *testing.T) {
	r := NewPasswordRotator(0, nil)
	assert.Equal(t, KindPassword, r.Kind())

	value, err := r.Rotate(context.Background(), "password")
	require.NoError(t, err)
	assert.Len(t, value, DefaultPasswordLength)
	for _, c := range value {
		assert.Contains(t, passwordCharset, string(c))
	}

	other, err := r.Rotate(context.Background(), "password")
	require.NoError(t, err)
	assert.NotEqual(t, value, other)
}

func TestPasswordRotatorCustomLength(t *testing.T) {
	r := NewPasswordRotator(64, nil)
	value, err := r.Rotate(context.Background(), "password")
	require.NoError(t, err)
	assert.Len(t, value, 64)
}

func TestPasswordRotatorUnsupportedKey(t *testing.T) {
	r := NewPasswordRotator(0, []string{"password"})

	_, err := r.Rotate(context.Background(), "certificate")
	require.Error(t, err)
	assert.True(t, IsNotSupported(err))

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "certificate", rerr.Key)
}

func TestAPIKeyRotator(t *testing.T) {
	r := NewAPIKeyRotator("sk", 0, nil)
	assert.Equal(t, KindAPIKey, r.Kind())

	value, err := r.Rotate(context.Background(), "api_key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(value, "sk_"))
	assert.Len(t, value, len("sk_")+DefaultAPIKeyLength)
}

func TestAPIKeyRotatorNoPrefix(t *testing.T) {
	r := NewAPIKeyRotator("", 20, nil)

	value, err := r.Rotate(context.Background(), "api_key")
	require.NoError(t, err)
	assert.Len(t, value, 20)
	assert.NotContains(t, value, "_")
}

func TestKeypairRotator(t *testing.T) {
	r := NewKeypairRotator(nil)
	assert.Equal(t, KindKeypair, r.Kind())

	value, err := r.Rotate(context.Background(), "signing_key")
	require.NoError(t, err)

	block, rest := pem.Decode([]byte(value))
	require.NotNil(t, block)
	assert.Empty(t, rest)
	assert.Equal(t, "PRIVATE KEY", block.Type)

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	_, ok := parsed.(ed25519.PrivateKey)
	assert.True(t, ok, "expected an ed25519 private key")
}

func TestErrorKindOf(t *testing.T) {
	assert.Equal(t, ErrUpstreamTimeout, KindOf(&Error{Kind: ErrUpstreamTimeout, Key: "k"}))
	assert.Equal(t, ErrUpstreamRejected, KindOf(assert.AnError), "untyped errors default to rejected")
	assert.False(t, IsNotSupported(assert.AnError))
}
