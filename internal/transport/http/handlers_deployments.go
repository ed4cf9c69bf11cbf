package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bastion/internal/transport/httputil"
	wfmodels "bastion/internal/workflow/models"
	dErrors "bastion/pkg/domain-errors"
)

type startDeploymentResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}

func (h *Handler) handleStartDeployment(w http.ResponseWriter, r *http.Request) {
	var req wfmodels.DeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid JSON body"))
		return
	}

	// The orchestrator validates the request itself.
	handle, err := h.deployments.StartDeployment(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "deployment accepted over http",
		"workflow_id", handle.ID,
		"subject_id", req.SubjectID,
	)
	httputil.WriteJSON(w, http.StatusAccepted, startDeploymentResponse{
		WorkflowID: handle.ID,
		Status:     string(wfmodels.StatusPending),
	})
}

type listDeploymentsResponse struct {
	Workflows []*wfmodels.Workflow `json:"workflows"`
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, listDeploymentsResponse{
		Workflows: h.deployments.ListWorkflows(r.Context()),
	})
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	wf, err := h.deployments.GetWorkflow(r.Context(), chi.URLParam(r, "workflowID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wf)
}

func (h *Handler) handleCancelDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "workflowID")
	if err := h.deployments.CancelWorkflow(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"workflow_id": id,
		"status":      string(wfmodels.StatusCancelled),
	})
}
