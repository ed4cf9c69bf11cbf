package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	capability "bastion/internal/capability/models"
	capservice "bastion/internal/capability/service"
	"bastion/internal/transport/httputil"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/validation"
)

type createGrantRequest struct {
	SubjectID       string   `json:"subject_id" validate:"required,notblank"`
	ResourceID      string   `json:"resource_id" validate:"required,notblank"`
	TaskID          string   `json:"task_id" validate:"required,notblank"`
	Scopes          []string `json:"scopes" validate:"required,min=1"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,min=1,max=240"`
}

type grantResponse struct {
	SubjectID         string    `json:"subject_id"`
	ResourceID        string    `json:"resource_id"`
	TaskID            string    `json:"task_id"`
	SessionSecret     string    `json:"session_secret"`
	AllowedOperations []string  `json:"allowed_operations"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func (h *Handler) handleCreateGrant(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid JSON body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, validation.ErrorMessage(err)))
		return
	}

	scopes := make([]capability.Scope, len(req.Scopes))
	for i, s := range req.Scopes {
		scopes[i] = capability.Scope(s)
	}
	grant, err := h.issuer.CreateGrant(r.Context(), capservice.CreateGrantRequest{
		SubjectID:       req.SubjectID,
		ResourceID:      req.ResourceID,
		TaskID:          req.TaskID,
		Scopes:          scopes,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ops := make([]string, len(grant.AllowedOperations))
	for i, op := range grant.AllowedOperations {
		ops[i] = string(op)
	}
	httputil.WriteJSON(w, http.StatusCreated, grantResponse{
		SubjectID:         grant.SubjectID,
		ResourceID:        grant.ResourceID,
		TaskID:            grant.TaskID,
		SessionSecret:     grant.SessionSecret,
		AllowedOperations: ops,
		CreatedAt:         grant.CreatedAt,
		ExpiresAt:         grant.ExpiresAt,
	})
}

type revokeGrantRequest struct {
	SubjectID  string `json:"subject_id" validate:"required,notblank"`
	ResourceID string `json:"resource_id" validate:"required,notblank"`
	TaskID     string `json:"task_id" validate:"required,notblank"`
}

func (h *Handler) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	var req revokeGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid JSON body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, validation.ErrorMessage(err)))
		return
	}

	// Revocation is idempotent; absent grants revoke to 204 as well.
	h.issuer.Revoke(r.Context(), req.SubjectID, req.ResourceID, req.TaskID)
	w.WriteHeader(http.StatusNoContent)
}
