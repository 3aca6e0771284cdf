package credential

import (
	"sync"
	"time"
)

// Store is the credential registry. Implementations must support concurrent
// readers with brief write critical sections and must not perform network
// I/O while holding internal locks.
//
// Remove only deletes a record whose expiry lies before the cutoff, so a
// sweeper snapshot can never race a fresh credential out of the store.
type Store interface {
	Put(lookup string, cred Credential) error
	Lookup(lookup string) (Credential, bool)
	Get(id string) (Credential, bool)
	Revoke(id, reason string) error
	ExpiredIDs(cutoff time.Time) []string
	Remove(id string, cutoff time.Time) bool
	Len() int
}

// MemoryStore keeps credentials in two hash maps: token lookup key to record
// and id to lookup key. Validation is a constant-time map read under an
// RLock.
type MemoryStore struct {
	mu       sync.RWMutex
	byLookup map[string]Credential
	idIndex  map[string]string
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byLookup: make(map[string]Credential),
		idIndex:  make(map[string]string),
	}
}

func (s *MemoryStore) Put(lookup string, cred Credential) error {
	s.mu.Lock()
	s.byLookup[lookup] = cred
	s.idIndex[cred.ID] = lookup
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Lookup(lookup string) (Credential, bool) {
	s.mu.RLock()
	cred, ok := s.byLookup[lookup]
	s.mu.RUnlock()
	return cred, ok
}

func (s *MemoryStore) Get(id string) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lookup, ok := s.idIndex[id]
	if !ok {
		return Credential{}, false
	}
	return s.byLookup[lookup], true
}

// Revoke is an atomic compare-and-set: the first call flips the revoked flag
// and records the reason; later calls succeed without overwriting it.
func (s *MemoryStore) Revoke(id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lookup, ok := s.idIndex[id]
	if !ok {
		return ErrNotFound
	}
	cred := s.byLookup[lookup]
	if cred.Revoked {
		return nil
	}
	cred.Revoked = true
	cred.RevokedReason = reason
	s.byLookup[lookup] = cred
	return nil
}

func (s *MemoryStore) ExpiredIDs(cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, cred := range s.byLookup {
		if cred.ExpiresAt.Before(cutoff) {
			ids = append(ids, cred.ID)
		}
	}
	return ids
}

func (s *MemoryStore) Remove(id string, cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	lookup, ok := s.idIndex[id]
	if !ok {
		return false
	}
	cred := s.byLookup[lookup]
	if !cred.ExpiresAt.Before(cutoff) {
		return false
	}
	delete(s.byLookup, lookup)
	delete(s.idIndex, id)
	return true
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byLookup)
}
