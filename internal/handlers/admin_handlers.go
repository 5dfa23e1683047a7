package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListGrants returns a page of the ledger, newest first.
func (h *Handlers) ListGrants(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	grants, err := h.grantService.ListGrants(r.Context(), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, grants)
}

// ListUserGrants returns one user's grant history, including revoked and
// time-expired rows; the ledger is append-only.
func (h *Handlers) ListUserGrants(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	limit, offset := parsePagination(r)

	grants, err := h.grantService.ListGrantsByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, grants)
}

func (h *Handlers) GetGrant(w http.ResponseWriter, r *http.Request) {
	grant, err := h.grantService.GetGrant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if grant == nil {
		writeError(w, http.StatusNotFound, "Grant not found")
		return
	}

	writeJSON(w, http.StatusOK, grant)
}

// RevokeGrant terminates a grant ahead of its expiry. Revoking twice is a
// no-op success; the row is never deleted.
func (h *Handlers) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	if err := h.unlockService.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handlers) GrantStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.grantService.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
