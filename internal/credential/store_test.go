package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedCredential(id string, expiresAt time.Time) Credential {
	return Credential{
		ID:        id,
		Type:      TypeAPIKey,
		Scopes:    []string{"read"},
		CreatedAt: expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
	}
}

func TestMemoryStorePutAndLookup(t *testing.T) {
	store := NewMemoryStore()
	cred := storedCredential("id-1", time.Now().Add(time.Hour))
	require.NoError(t, store.Put("lookup-1", cred))

	got, ok := store.Lookup("lookup-1")
	require.True(t, ok)
	assert.Equal(t, "id-1", got.ID)

	byID, ok := store.Get("id-1")
	require.True(t, ok)
	assert.Equal(t, cred.ExpiresAt, byID.ExpiresAt)

	_, ok = store.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreRevokeIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put("lk", storedCredential("id-1", time.Now().Add(time.Hour))))

	require.NoError(t, store.Revoke("id-1", "compromised"))
	cred, _ := store.Get("id-1")
	assert.True(t, cred.Revoked)
	assert.Equal(t, "compromised", cred.RevokedReason)

	// Second revoke succeeds without overwriting the original reason.
	require.NoError(t, store.Revoke("id-1", "different reason"))
	cred, _ = store.Get("id-1")
	assert.Equal(t, "compromised", cred.RevokedReason)
}

func TestMemoryStoreRevokeUnknownID(t *testing.T) {
	store := NewMemoryStore()
	assert.ErrorIs(t, store.Revoke("nope", "x"), ErrNotFound)
}

func TestMemoryStoreRemoveHonorsCutoff(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	require.NoError(t, store.Put("old", storedCredential("old-id", now.Add(-2*time.Hour))))
	require.NoError(t, store.Put("fresh", storedCredential("fresh-id", now.Add(time.Hour))))

	cutoff := now.Add(-time.Hour)
	ids := store.ExpiredIDs(cutoff)
	assert.Equal(t, []string{"old-id"}, ids)

	assert.True(t, store.Remove("old-id", cutoff))
	assert.False(t, store.Remove("fresh-id", cutoff), "unexpired record must not be removed")
	assert.Equal(t, 1, store.Len())
}

func TestGormStoreRoundTrip(t *testing.T) {
	db, err := OpenSQLite(t.TempDir() + "/credops.db")
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)

	now := time.Now().Truncate(time.Second)
	cred := Credential{
		ID:        "db-id-1",
		Type:      TypeServiceToken,
		Scopes:    []string{"read", "rotate"},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
		Metadata:  Metadata{ServiceID: "billing"},
	}
	require.NoError(t, store.Put("db-lookup-1", cred))

	got, ok := store.Lookup("db-lookup-1")
	require.True(t, ok)
	assert.Equal(t, []string{"read", "rotate"}, got.Scopes)
	assert.Equal(t, "billing", got.Metadata.ServiceID)
	assert.Equal(t, 1, store.Len())
}

func TestGormStoreRevokeSemantics(t *testing.T) {
	db, err := OpenSQLite(t.TempDir() + "/credops.db")
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.Put("lk", storedCredential("id-1", now.Add(time.Hour))))

	require.NoError(t, store.Revoke("id-1", "rotated away"))
	require.NoError(t, store.Revoke("id-1", "second reason"))
	got, ok := store.Get("id-1")
	require.True(t, ok)
	assert.True(t, got.Revoked)
	assert.Equal(t, "rotated away", got.RevokedReason)

	assert.ErrorIs(t, store.Revoke("ghost", "x"), ErrNotFound)
}

func TestGormStoreSweepQueries(t *testing.T) {
	db, err := OpenSQLite(t.TempDir() + "/credops.db")
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, store.Put("old", storedCredential("old-id", now.Add(-2*time.Hour))))
	require.NoError(t, store.Put("fresh", storedCredential("fresh-id", now.Add(time.Hour))))

	cutoff := now.Add(-time.Hour)
	assert.Equal(t, []string{"old-id"}, store.ExpiredIDs(cutoff))
	assert.True(t, store.Remove("old-id", cutoff))
	assert.False(t, store.Remove("fresh-id", cutoff))
	assert.Equal(t, 1, store.Len())
}
