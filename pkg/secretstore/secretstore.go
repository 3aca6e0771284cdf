// Package secretstore abstracts the external systems of record that receive
// rotated secret values. The contract is a plain keyed Get/Set/Delete; the
// group argument namespaces keys per service. Stores are opaque
// collaborators: their replication and durability strategy is out of scope
// here.
package secretstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("secret not found")

// SecretStore is an external secret backend. Implementations must be safe
// for concurrent use.
type SecretStore interface {
	// Name identifies the store in logs and rotation record details.
	Name() string

	Get(ctx context.Context, group, key string) (string, error)
	Set(ctx context.Context, group, key, value string) error
	Delete(ctx context.Context, group, key string) error
}

// MemoryStore is an in-process store used for tests and single-node
// deployments.
type MemoryStore struct {
	name string
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, data: make(map[string]string)}
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) Get(ctx context.Context, group, key string) (string, error) {
	s.mu.RLock()
	value, ok := s.data[group+"/"+key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s/%s: %w", group, key, ErrNotFound)
	}
	return value, nil
}

func (s *MemoryStore) Set(ctx context.Context, group, key, value string) error {
	s.mu.Lock()
	s.data[group+"/"+key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, group, key string) error {
	s.mu.Lock()
	delete(s.data, group+"/"+key)
	s.mu.Unlock()
	return nil
}
