// Package secure holds freshly rotated secret values in encrypted memory
// between generation and publication, so plaintext never sits idle on the
// heap. Built on memguard enclaves, which encrypt at rest and mlock where
// the platform allows it.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Value is a rotated secret value held in an encrypted enclave. The
// plaintext only exists while Reveal runs and is wiped as soon as the
// callback returns.
type Value struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
	closed  bool
}

// NewValue seals the given secret. The caller should not retain other
// copies of the plaintext.
func NewValue(plaintext []byte) *Value {
	return &Value{enclave: memguard.NewEnclave(plaintext)}
}

// Reveal decrypts the value, passes the plaintext to fn, and wipes the
// decrypted buffer before returning. Calling Reveal on a closed Value
// invokes fn with an empty slice.
func (v *Value) Reveal(fn func(plaintext []byte) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fn(nil)
	}

	buf, err := v.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}

// Close marks the value as unusable. The encrypted enclave itself needs no
// explicit destruction. Close is idempotent.
func (v *Value) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}
