// Package httpapi exposes the credential lifecycle over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/systmms/credops/internal/audit"
	"github.com/systmms/credops/internal/credential"
	"github.com/systmms/credops/internal/logging"
)

// Handler serves the credential endpoints.
type Handler struct {
	issuer   *credential.Issuer
	store    credential.Store
	logger   *logging.Logger
	auditLog *audit.Log
}

// NewHandler creates the credential HTTP handler.
func NewHandler(issuer *credential.Issuer, store credential.Store, logger *logging.Logger, auditLog *audit.Log) *Handler {
	return &Handler{issuer: issuer, store: store, logger: logger, auditLog: auditLog}
}

type issueRequest struct {
	Type       string              `json:"type"`
	Scopes     []string            `json:"scopes"`
	TTLSeconds int64               `json:"ttl_seconds"`
	Metadata   credential.Metadata `json:"metadata"`
}

type issueResponse struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// IssueCredential mints a new credential and returns the token value. The
// raw token appears only in this response; afterwards only its lookup hash
// exists server side.
func (h *Handler) IssueCredential(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	id, token, err := h.issuer.Issue(credential.Type(req.Type), req.Scopes, ttl, req.Metadata)
	if err != nil {
		var scopeErr credential.InvalidScopeError
		var storageErr credential.StorageError
		switch {
		case errors.As(err, &storageErr):
			h.logger.Error("Credential issuance failed: %v", err)
			writeError(w, http.StatusInternalServerError, "credential could not be stored")
		case errors.Is(err, credential.ErrInvalidTTL),
			errors.Is(err, credential.ErrEmptyScopes),
			errors.As(err, &scopeErr):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	cred, ok := h.store.Get(id)
	if !ok {
		// The record was just written; losing it here means the store is
		// misbehaving.
		h.logger.Error("Issued credential %s missing from store", id)
		writeError(w, http.StatusInternalServerError, "credential could not be read back")
		return
	}

	writeJSON(w, http.StatusCreated, issueResponse{ID: id, Token: token, ExpiresAt: cred.ExpiresAt})
}

// GetCredential returns the stored record for an id. The token value is not
// recoverable.
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cred, ok := h.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

// RevokeCredential marks a credential revoked. Revoking twice succeeds and
// keeps the original reason.
func (h *Handler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req revokeRequest
	if r.Body != nil {
		// An empty body means an unspecified reason.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := h.store.Revoke(id, req.Reason); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.logger.Error("Revocation of %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "revocation failed")
		return
	}

	h.auditLog.Record(audit.EventRevocation, "credential revoked", map[string]string{
		"credential_id": id,
		"reason":        req.Reason,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
