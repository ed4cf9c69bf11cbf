package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	capability "bastion/internal/capability/models"
	gwmodels "bastion/internal/gateway/models"
	"bastion/internal/transport/httputil"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/validation"
)

type operationRequest struct {
	SubjectID     string         `json:"subject_id" validate:"required,notblank"`
	ResourceID    string         `json:"resource_id" validate:"required,notblank"`
	TaskID        string         `json:"task_id" validate:"required,notblank"`
	SessionSecret string         `json:"session_secret" validate:"required"`
	Operation     string         `json:"operation" validate:"required"`
	Parameters    map[string]any `json:"parameters"`
}

type operationResponse struct {
	Success     bool           `json:"success"`
	Data        map[string]any `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	OperationID string         `json:"operation_id"`
	Timestamp   time.Time      `json:"timestamp"`
}

// handleExecuteOperation runs one operation through the authorization
// gateway. The response is always 200: success and failure are both data,
// discriminated by the success flag, so callers never have to tell a
// transport failure from a denied operation.
func (h *Handler) handleExecuteOperation(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid JSON body"))
		return
	}
	if err := validation.Validate(req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, validation.ErrorMessage(err)))
		return
	}

	result := h.gateway.ExecuteOperation(r.Context(),
		gwmodels.SessionContext{
			SubjectID:     req.SubjectID,
			ResourceID:    req.ResourceID,
			TaskID:        req.TaskID,
			SessionSecret: req.SessionSecret,
		},
		gwmodels.OperationRequest{
			Operation:  capability.Operation(req.Operation),
			Parameters: req.Parameters,
		},
	)

	httputil.WriteJSON(w, http.StatusOK, operationResponse{
		Success:     result.Success,
		Data:        result.Data,
		Error:       result.Error,
		ErrorCode:   string(result.ErrorCode),
		OperationID: result.OperationID,
		Timestamp:   result.Timestamp,
	})
}
