package authmw

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/internal/credential"
	"github.com/systmms/credops/internal/logging"
)

// Identity is the validated caller attached to the request context.
type Identity struct {
	CredentialID string
	Scopes       []string
}

type contextKey int

const identityKey contextKey = iota

// FromContext returns the validated identity, if the request passed
// authentication.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Middleware authenticates requests against the credential validator.
// Failure responses carry only a generic message; the detailed reason goes
// to the audit log.
type Middleware struct {
	validator *credential.Validator
	routes    *RouteTable
	logger    *logging.Logger
	auditLog  *audit.Log
}

// New creates the middleware.
func New(validator *credential.Validator, routes *RouteTable, logger *logging.Logger, auditLog *audit.Log) *Middleware {
	return &Middleware{
		validator: validator,
		routes:    routes,
		logger:    logger,
		auditLog:  auditLog,
	}
}

// Handler wraps next with credential enforcement. The signature matches
// standard net/http middleware, so chi (or any compatible router) mounts it
// directly with Use.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractToken(r)
		if !ok {
			if m.routes.Excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, "", "missing credentials")
			return
		}

		required := m.routes.RequiredScopes(r.URL.Path)
		result := m.validator.Validate(token, required)
		if !result.Valid {
			m.deny(w, r, result.CredentialID, string(result.Reason))
			return
		}

		m.auditLog.Record(audit.EventAccessGranted, "request authenticated", map[string]string{
			"credential_id": result.CredentialID,
			"path":          r.URL.Path,
			"method":        r.Method,
			"remote_ip":     callerIP(r),
		})

		ctx := context.WithValue(r.Context(), identityKey, Identity{
			CredentialID: result.CredentialID,
			Scopes:       result.Scopes,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deny writes the generic 401 body and records the detailed audit event.
func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, credentialID, reason string) {
	fields := map[string]string{
		"path":      r.URL.Path,
		"method":    r.Method,
		"remote_ip": callerIP(r),
		"reason":    reason,
	}
	if credentialID != "" {
		fields["credential_id"] = credentialID
	}
	m.auditLog.Record(audit.EventAccessDenied, "request rejected", fields)
	m.logger.Debug("Denied %s %s: %s", r.Method, r.URL.Path, reason)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": "authentication required"})
}

// extractToken pulls the credential from Authorization: Bearer or X-API-Key.
func extractToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			return token, token != ""
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, true
	}
	return "", false
}

func callerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
