// Package httptransport is the thin HTTP layer. Handlers decode, validate,
// and delegate to domain services; no business logic lives here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	capability "bastion/internal/capability/models"
	capservice "bastion/internal/capability/service"
	gwmodels "bastion/internal/gateway/models"
	"bastion/internal/platform/health"
	"bastion/internal/platform/middleware"
	wfmodels "bastion/internal/workflow/models"
	wfservice "bastion/internal/workflow/service"
)

// Issuer is the capability issuer surface the transport exposes.
type Issuer interface {
	CreateGrant(ctx context.Context, req capservice.CreateGrantRequest) (*capability.Grant, error)
	Revoke(ctx context.Context, subjectID, resourceID, taskID string)
}

// Gateway executes one authorized operation.
type Gateway interface {
	ExecuteOperation(ctx context.Context, session gwmodels.SessionContext, req gwmodels.OperationRequest) gwmodels.OperationResult
}

// Deployments is the workflow orchestrator surface.
type Deployments interface {
	StartDeployment(ctx context.Context, req wfmodels.DeploymentRequest) (*wfservice.Handle, error)
	GetWorkflow(ctx context.Context, id string) (*wfmodels.Workflow, error)
	ListWorkflows(ctx context.Context) []*wfmodels.Workflow
	CancelWorkflow(ctx context.Context, id string) error
}

type Handler struct {
	issuer      Issuer
	gateway     Gateway
	deployments Deployments
	logger      *slog.Logger
}

func NewHandler(issuer Issuer, gateway Gateway, deployments Deployments, logger *slog.Logger) *Handler {
	return &Handler{
		issuer:      issuer,
		gateway:     gateway,
		deployments: deployments,
		logger:      logger,
	}
}

// NewRouter wires all endpoints with the middleware stack. Grant and
// deployment management requires an operator token; operation execution
// authenticates with the session secret inside the request body.
func NewRouter(h *Handler, tokens middleware.OperatorValidator, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/operations", h.handleExecuteOperation)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOperator(tokens, logger))
			r.Post("/grants", h.handleCreateGrant)
			r.Delete("/grants", h.handleRevokeGrant)
			r.Post("/deployments", h.handleStartDeployment)
			r.Get("/deployments", h.handleListDeployments)
			r.Get("/deployments/{workflowID}", h.handleGetDeployment)
			r.Post("/deployments/{workflowID}/cancel", h.handleCancelDeployment)
		})
	})

	return r
}
