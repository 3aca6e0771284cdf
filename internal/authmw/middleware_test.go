package authmw

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/internal/credential"
	"github.com/systmms/credops/internal/logging"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Write(ev audit.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) byType(eventType string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, ev := range r.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func testSetup(t *testing.T) (*credential.Issuer, *Middleware, *recordingSink) {
	t.Helper()
	issuer, mw, sink, _ := testSetupWithStore(t)
	return issuer, mw, sink
}

func testSetupWithStore(t *testing.T) (*credential.Issuer, *Middleware, *recordingSink, *credential.MemoryStore) {
	t.Helper()
	store := credential.NewMemoryStore()
	logger := logging.NewWithWriter(io.Discard, false, true)
	sink := &recordingSink{}
	auditLog := audit.NewLog(sink)

	issuer := credential.NewIssuer(store, credential.DefaultVocabulary(), logger, auditLog)
	routes := NewRouteTable([]Rule{
		{Path: "/v1/admin/settings", Scopes: []string{"admin"}},
		{Path: "/v1/admin/", Scopes: []string{"write"}},
		{Path: "/v1/", Scopes: []string{"read"}},
	}, []string{"/healthz"})

	mw := New(credential.NewValidator(store), routes, logger, auditLog)
	return issuer, mw, sink, store
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := FromContext(r.Context()); ok {
			w.Header().Set("X-Credential-ID", id.CredentialID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestExcludedPathPassesWithoutToken(t *testing.T) {
	_, mw, sink := testSetup(t)
	rec := httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Credential-ID"))
	assert.Empty(t, sink.byType(audit.EventAccessDenied))
}

func TestMissingTokenOnProtectedPath(t *testing.T) {
	_, mw, sink := testSetup(t)
	rec := httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/things", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"authentication required"}`, rec.Body.String())

	denied := sink.byType(audit.EventAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "/v1/things", denied[0].Context["path"])
	assert.Equal(t, "missing credentials", denied[0].Context["reason"])
}

func TestBearerTokenGrantsAccess(t *testing.T) {
	issuer, mw, sink := testSetup(t)
	id, token, err := issuer.Issue(credential.TypeAccessToken, []string{"read"}, time.Hour, credential.Metadata{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, rec.Header().Get("X-Credential-ID"))

	granted := sink.byType(audit.EventAccessGranted)
	require.Len(t, granted, 1)
	assert.Equal(t, id, granted[0].Context["credential_id"])
	assert.NotEmpty(t, granted[0].Context["remote_ip"])
}

func TestAPIKeyHeaderGrantsAccess(t *testing.T) {
	issuer, mw, _ := testSetup(t)
	_, token, err := issuer.Issue(credential.TypeAPIKey, []string{"read"}, time.Hour, credential.Metadata{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
	req.Header.Set("X-API-Key", token)
	rec := httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInsufficientScopeIsGenericToCaller(t *testing.T) {
	issuer, mw, sink := testSetup(t)
	_, token, err := issuer.Issue(credential.TypeAccessToken, []string{"read"}, time.Hour, credential.Metadata{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	// Response body never leaks the internal failure reason.
	assert.JSONEq(t, `{"detail":"authentication required"}`, rec.Body.String())

	denied := sink.byType(audit.EventAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "insufficient_scope", denied[0].Context["reason"])
}

func TestExactMatchBeatsLongerPrefix(t *testing.T) {
	issuer, mw, _ := testSetup(t)
	// admin scope satisfies only the exact /v1/admin/settings rule.
	_, token, err := issuer.Issue(credential.TypeAccessToken, []string{"admin"}, time.Hour, credential.Metadata{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The same token fails under the /v1/admin/ prefix rule, which wants
	// write scope.
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/other", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokedTokenDenied(t *testing.T) {
	issuer, mw, sink, store := testSetupWithStore(t)

	id, token, err := issuer.Issue(credential.TypeAccessToken, []string{"read"}, time.Hour, credential.Metadata{})
	require.NoError(t, err)
	require.NoError(t, store.Revoke(id, "owner request"))

	req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Handler(echoIdentity()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	denied := sink.byType(audit.EventAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "revoked", denied[0].Context["reason"])
	assert.Equal(t, id, denied[0].Context["credential_id"])
}

func TestRouteTableResolution(t *testing.T) {
	table := NewRouteTable([]Rule{
		{Path: "/v1/credentials", Scopes: []string{"admin"}},
		{Path: "/v1/", Scopes: []string{"read"}},
		{Path: "/v1/rotation/", Scopes: []string{"rotate"}},
	}, []string{"/metrics"})

	assert.Equal(t, []string{"admin"}, table.RequiredScopes("/v1/credentials"))
	assert.Equal(t, []string{"rotate"}, table.RequiredScopes("/v1/rotation/run"))
	assert.Equal(t, []string{"read"}, table.RequiredScopes("/v1/other"))
	assert.Nil(t, table.RequiredScopes("/unmatched"))
	assert.True(t, table.Excluded("/metrics"))
	assert.False(t, table.Excluded("/v1/credentials"))
}
