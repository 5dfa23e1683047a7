package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/disrupton/collaborators/internal/domain"
)

// GetCollaborator returns the profile projected for the caller's current
// access: guests and non-paying users get the public view, grant holders the
// premium one.
func (h *Handlers) GetCollaborator(w http.ResponseWriter, r *http.Request) {
	collaboratorID := chi.URLParam(r, "id")

	profile, err := h.accessService.GetProfile(r.Context(), collaboratorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "Collaborator not found")
		return
	}

	decision, err := h.accessService.CheckAccess(r.Context(), currentUserID(r), collaboratorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.Project(profile, decision))
}

type unlockResponse struct {
	Grant     *domain.AccessGrant `json:"grant"`
	Granted   bool                `json:"granted"`
	HasAccess bool                `json:"has_access"`
}

// UnlockCollaborator runs the paid-unlock transaction for the authenticated
// caller. Repeats and retries are safe: an existing effective grant is
// returned as-is with granted=false.
func (h *Handlers) UnlockCollaborator(w http.ResponseWriter, r *http.Request) {
	collaboratorID := chi.URLParam(r, "id")

	var req domain.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	result, err := h.unlockService.Unlock(r.Context(), currentUserID(r), collaboratorID, &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, unlockResponse{
		Grant:     result.Grant,
		Granted:   result.Granted,
		HasAccess: true,
	})
}

type accessCheckResponse struct {
	CollaboratorID string    `json:"collaborator_id"`
	UserID         string    `json:"user_id,omitempty"`
	HasAccess      bool      `json:"has_access"`
	Timestamp      time.Time `json:"timestamp"`
}

// CheckAccess reports the caller's current access to a collaborator's
// premium fields. Guests always read hasAccess=false.
func (h *Handlers) CheckAccess(w http.ResponseWriter, r *http.Request) {
	collaboratorID := chi.URLParam(r, "id")
	userID := currentUserID(r)

	decision, err := h.accessService.CheckAccess(r.Context(), userID, collaboratorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accessCheckResponse{
		CollaboratorID: collaboratorID,
		UserID:         userID,
		HasAccess:      decision.HasAccess,
		Timestamp:      time.Now(),
	})
}
