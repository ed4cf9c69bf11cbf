// Package service implements the deployment workflow orchestrator. A
// deployment is an ordered step sequence; every backend effect a step needs
// goes through the authorization gateway under the workflow's own grant, so
// the orchestrator holds no privileged path of its own.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/semaphore"

	"bastion/internal/audit"
	capability "bastion/internal/capability/models"
	capservice "bastion/internal/capability/service"
	gwmodels "bastion/internal/gateway/models"
	"bastion/internal/platform/metrics"
	"bastion/internal/recovery"
	"bastion/internal/sentinel"
	wfevents "bastion/internal/workflow/events"
	"bastion/internal/workflow/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/retry"
	"bastion/pkg/validation"
)

// Canonical deployment step names, in execution order.
const (
	StepAcquireGrant     = "acquire-grant"
	StepCreateResource   = "create-compute-resource"
	StepFetchSource      = "fetch-or-init-source"
	StepInstallDeps      = "install-dependencies"
	StepGenerateCode     = "generate-or-modify-code"
	StepRunTests         = "run-tests"
	StepBuild            = "build"
	StepExtractArtifacts = "extract-artifacts"
	StepStartApp         = "start-application"
	StepVerifyApp        = "verify-application"
	StepCleanup          = "cleanup"
)

var stepSequence = []string{
	StepAcquireGrant,
	StepCreateResource,
	StepFetchSource,
	StepInstallDeps,
	StepGenerateCode,
	StepRunTests,
	StepBuild,
	StepExtractArtifacts,
	StepStartApp,
	StepVerifyApp,
	StepCleanup,
}

// A failing test run is recorded on the step but does not fail the
// deployment.
var nonFatalSteps = map[string]bool{
	StepRunTests: true,
}

const (
	defaultGrantMinutes    = 120
	defaultRecoveryMinutes = 15
	defaultMaxConcurrent   = 4
	defaultTemplate        = "node-lts"
)

var deploymentScopes = []capability.Scope{
	capability.ScopeContainerCreate,
	capability.ScopeContainerExec,
	capability.ScopeContainerRead,
	capability.ScopeContainerStop,
	capability.ScopeGitRead,
	capability.ScopeGitWrite,
}

var recoveryScopes = []capability.Scope{
	capability.ScopeContainerRead,
	capability.ScopeContainerExec,
	capability.ScopeContainerStop,
}

// WorkflowStore defines the persistence interface for workflow records.
type WorkflowStore interface {
	Create(ctx context.Context, wf *models.Workflow) error
	Get(ctx context.Context, id string) (*models.Workflow, error)
	Update(ctx context.Context, id string, mutate func(*models.Workflow) error) (*models.Workflow, error)
	List(ctx context.Context) []*models.Workflow
}

// GrantIssuer is the slice of the capability issuer the orchestrator needs:
// minting the deployment and recovery grants and revoking them afterwards.
type GrantIssuer interface {
	CreateGrant(ctx context.Context, req capservice.CreateGrantRequest) (*capability.Grant, error)
	Revoke(ctx context.Context, subjectID, resourceID, taskID string)
}

// OperationExecutor is the authorization gateway contract.
type OperationExecutor interface {
	ExecuteOperation(ctx context.Context, session gwmodels.SessionContext, req gwmodels.OperationRequest) gwmodels.OperationResult
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

type Service struct {
	workflows WorkflowStore
	issuer    GrantIssuer
	gateway   OperationExecutor
	recovery  recovery.Handler
	events    *wfevents.Registry
	logger    *slog.Logger
	metrics   *metrics.Metrics
	auditPub  AuditPublisher
	sem       *semaphore.Weighted
	now       func() time.Time

	grantMinutes    int
	recoveryMinutes int

	mu      sync.Mutex
	waiters map[string]*waiter
}

type waiter struct {
	ch   chan struct{}
	once sync.Once
}

func (w *waiter) done() {
	w.once.Do(func() { close(w.ch) })
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPub = publisher }
}

// WithRecoveryHandler registers the failure recovery collaborator. Without
// one, failed deployments skip the recovery step.
func WithRecoveryHandler(h recovery.Handler) Option {
	return func(s *Service) { s.recovery = h }
}

// WithMaxConcurrent bounds how many deployments run at once.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithGrantDuration overrides the deployment grant lifetime.
func WithGrantDuration(minutes int) Option {
	return func(s *Service) {
		if minutes > 0 {
			s.grantMinutes = minutes
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(workflows WorkflowStore, issuer GrantIssuer, gateway OperationExecutor, opts ...Option) (*Service, error) {
	if workflows == nil || issuer == nil || gateway == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "workflow store, issuer, and gateway are required")
	}
	svc := &Service{
		workflows:       workflows,
		issuer:          issuer,
		gateway:         gateway,
		events:          wfevents.NewRegistry(),
		sem:             semaphore.NewWeighted(defaultMaxConcurrent),
		now:             time.Now,
		grantMinutes:    defaultGrantMinutes,
		recoveryMinutes: defaultRecoveryMinutes,
		waiters:         make(map[string]*waiter),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// Events exposes the lifecycle event registry for subscribers.
func (s *Service) Events() *wfevents.Registry {
	return s.events
}

// Handle tracks a deployment started by StartDeployment.
type Handle struct {
	ID  string
	svc *Service
}

// Workflow returns a snapshot of the current workflow record.
func (h *Handle) Workflow(ctx context.Context) (*models.Workflow, error) {
	return h.svc.GetWorkflow(ctx, h.ID)
}

// Wait blocks until the workflow reaches a terminal status or ctx is done,
// then returns the final record.
func (h *Handle) Wait(ctx context.Context) (*models.Workflow, error) {
	w := h.svc.waiterFor(h.ID)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.ch:
		return h.svc.GetWorkflow(ctx, h.ID)
	}
}

// run carries the per-deployment state the step handlers share.
type run struct {
	id           string
	resourceID   string
	req          models.DeploymentRequest
	grant        *capability.Grant
	session      gwmodels.SessionContext
	containerRef string
	released     bool
}

// StartDeployment validates the request, records a pending workflow, and
// starts the runner. The workflow advances asynchronously; use the returned
// Handle to observe or wait for it.
func (s *Service) StartDeployment(ctx context.Context, req models.DeploymentRequest) (*Handle, error) {
	if err := validation.Validate(req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, validation.ErrorMessage(err))
	}

	id := uuid.NewString()
	resourceID := "deploy-" + id[:8]
	steps := make([]*models.Step, len(stepSequence))
	for i, name := range stepSequence {
		steps[i] = &models.Step{
			ID:     fmt.Sprintf("%s-%02d", id[:8], i+1),
			Name:   name,
			Status: models.StepPending,
		}
	}
	wf := &models.Workflow{
		ID:          id,
		SubjectID:   req.SubjectID,
		ResourceID:  resourceID,
		ProjectName: req.ProjectName,
		Status:      models.StatusPending,
		Steps:       steps,
		StartTime:   s.now(),
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not record workflow")
	}

	s.logger.InfoContext(ctx, "deployment accepted",
		"workflow_id", id,
		"subject_id", req.SubjectID,
		"project", req.ProjectName,
	)
	go s.execute(&run{id: id, resourceID: resourceID, req: req})
	return &Handle{ID: id, svc: s}, nil
}

func (s *Service) waiterFor(id string) *waiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waiters[id]
	if !ok {
		w = &waiter{ch: make(chan struct{})}
		s.waiters[id] = w
	}
	return w
}

// execute is the runner goroutine for one deployment.
func (s *Service) execute(r *run) {
	ctx, span := otel.Tracer("workflow").Start(context.Background(), "workflow.execute")
	defer span.End()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.failWorkflow(ctx, r, StepAcquireGrant, err)
		s.waiterFor(r.id).done()
		return
	}
	defer s.sem.Release(1)

	if s.metrics != nil {
		s.metrics.IncrementWorkflowsStarted()
		s.metrics.IncrementRunningWorkflows()
		defer s.metrics.DecrementRunningWorkflows()
	}
	s.emitAudit(ctx, audit.EventWorkflowStarted, r, "started", "")

	_, err := s.workflows.Update(ctx, r.id, func(wf *models.Workflow) error {
		wf.Status = models.StatusRunning
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "could not start workflow", "workflow_id", r.id, "error", err)
		s.waiterFor(r.id).done()
		return
	}

	for i, name := range stepSequence {
		if s.isTerminal(ctx, r.id) {
			// Cancelled between steps. Remaining steps were marked
			// skipped when the cancellation landed; the container and
			// grant still need releasing.
			s.releaseResources(ctx, r)
			s.waiterFor(r.id).done()
			return
		}

		s.beginStep(ctx, r.id, i, name)
		started := s.now()
		output, stepErr := s.runStep(ctx, r, name)
		if s.metrics != nil {
			s.metrics.ObserveStepDuration(name, s.now().Sub(started).Seconds())
		}

		if stepErr != nil {
			s.finishStep(ctx, r.id, i, models.StepFailed, output, stepErr)
			s.publish(wfevents.StepFailed, r.id, name, stepErr.Error())
			if nonFatalSteps[name] {
				s.logger.WarnContext(ctx, "step failed, continuing",
					"workflow_id", r.id, "step", name, "error", stepErr)
				continue
			}
			s.failWorkflow(ctx, r, name, stepErr)
			s.attemptRecovery(ctx, r, name, stepErr)
			s.releaseResources(ctx, r)
			s.waiterFor(r.id).done()
			return
		}

		s.finishStep(ctx, r.id, i, models.StepCompleted, output, nil)
		s.publish(wfevents.StepCompleted, r.id, name, "")
	}

	s.completeWorkflow(ctx, r)
	s.waiterFor(r.id).done()
}

func (s *Service) runStep(ctx context.Context, r *run, name string) (string, error) {
	switch name {
	case StepAcquireGrant:
		return s.stepAcquireGrant(ctx, r)
	case StepCreateResource:
		return s.stepCreateResource(ctx, r)
	case StepFetchSource:
		return s.stepFetchSource(ctx, r)
	case StepInstallDeps:
		return s.runArgv(ctx, r, []string{"npm", "install"})
	case StepGenerateCode:
		return s.runArgv(ctx, r, []string{"npm", "run", "codegen", "--if-present"})
	case StepRunTests:
		return s.runArgv(ctx, r, []string{"npm", "test"})
	case StepBuild:
		return s.stepBuild(ctx, r)
	case StepExtractArtifacts:
		return s.stepExtractArtifacts(ctx, r)
	case StepStartApp:
		return s.runArgv(ctx, r, []string{"npm", "start"})
	case StepVerifyApp:
		return s.stepVerifyApplication(ctx, r)
	case StepCleanup:
		return s.stepCleanup(ctx, r)
	default:
		return "", dErrors.New(dErrors.CodeInternal, "unknown step: "+name)
	}
}

func (s *Service) stepAcquireGrant(ctx context.Context, r *run) (string, error) {
	grant, err := s.issuer.CreateGrant(ctx, capservice.CreateGrantRequest{
		SubjectID:       r.req.SubjectID,
		ResourceID:      r.resourceID,
		TaskID:          r.id,
		Scopes:          deploymentScopes,
		DurationMinutes: s.grantMinutes,
	})
	if err != nil {
		return "", err
	}
	r.grant = grant
	r.session = gwmodels.SessionContext{
		SubjectID:     grant.SubjectID,
		ResourceID:    grant.ResourceID,
		TaskID:        grant.TaskID,
		SessionSecret: grant.SessionSecret,
	}
	return "deployment grant issued, expires " + grant.ExpiresAt.Format(time.RFC3339), nil
}

func (s *Service) stepCreateResource(ctx context.Context, r *run) (string, error) {
	template := r.req.Template
	if template == "" {
		template = defaultTemplate
	}
	params := map[string]any{
		"name":     r.req.ProjectName,
		"template": template,
	}
	if len(r.req.EnvVars) > 0 {
		params["env"] = r.req.EnvVars
	}
	res := s.exec(ctx, r, capability.OpCreateContainer, params)
	if !res.Success {
		return "", resultError(res)
	}
	ref, _ := res.Data["ref"].(string)
	r.containerRef = ref
	return "container " + ref + " created", nil
}

func (s *Service) stepFetchSource(ctx context.Context, r *run) (string, error) {
	if r.req.SourceRepo == "" {
		return s.runArgv(ctx, r, []string{"npm", "init", "-y"})
	}
	res := s.exec(ctx, r, capability.OpGitClone, map[string]any{
		"containerRef": r.containerRef,
		"repoUrl":      r.req.SourceRepo,
	})
	if !res.Success {
		return "", resultError(res)
	}
	return "cloned " + r.req.SourceRepo, nil
}

func (s *Service) stepBuild(ctx context.Context, r *run) (string, error) {
	if r.req.BuildCommand != "" {
		res := s.exec(ctx, r, capability.OpExecuteCommand, map[string]any{
			"containerRef": r.containerRef,
			"command":      r.req.BuildCommand,
		})
		if !res.Success {
			return "", resultError(res)
		}
		stdout, _ := res.Data["stdout"].(string)
		return strings.TrimSpace(stdout), nil
	}
	return s.runArgv(ctx, r, []string{"npm", "run", "build"})
}

func (s *Service) stepExtractArtifacts(ctx context.Context, r *run) (string, error) {
	path := r.req.OutputPath
	if path == "" {
		path = "dist"
	}
	out, err := s.runArgv(ctx, r, []string{"ls", "-1", path})
	if err != nil {
		return "", err
	}
	artifacts := strings.Fields(out)
	_, uerr := s.workflows.Update(ctx, r.id, func(wf *models.Workflow) error {
		wf.Artifacts = artifacts
		return nil
	})
	if uerr != nil {
		return "", uerr
	}
	return fmt.Sprintf("%d artifacts in %s", len(artifacts), path), nil
}

func (s *Service) stepVerifyApplication(ctx context.Context, r *run) (string, error) {
	res := s.exec(ctx, r, capability.OpGetStatus, map[string]any{
		"containerRef": r.containerRef,
	})
	if !res.Success {
		return "", resultError(res)
	}
	state, _ := res.Data["status"].(string)
	if state != "running" {
		return "", dErrors.New(dErrors.CodeStepFailed,
			fmt.Sprintf("container %s is %s, expected running", r.containerRef, state))
	}
	logs := s.exec(ctx, r, capability.OpGetLogs, map[string]any{
		"containerRef": r.containerRef,
		"tail":         20,
	})
	tail, _ := logs.Data["logs"].(string)
	return "application running\n" + strings.TrimSpace(tail), nil
}

// stepCleanup releases the deployment's resources. Best effort; it reports
// problems in its output but never fails the workflow.
func (s *Service) stepCleanup(ctx context.Context, r *run) (string, error) {
	var notes []string
	if r.containerRef != "" {
		res := s.exec(ctx, r, capability.OpStopContainer, map[string]any{
			"containerRef": r.containerRef,
		})
		if res.Success {
			notes = append(notes, "container "+r.containerRef+" stopped")
		} else {
			notes = append(notes, "container stop failed: "+res.Error)
		}
	}
	if r.grant != nil {
		s.issuer.Revoke(ctx, r.grant.SubjectID, r.grant.ResourceID, r.grant.TaskID)
		notes = append(notes, "deployment grant revoked")
	}
	r.released = true
	if len(notes) == 0 {
		return "nothing to release", nil
	}
	return strings.Join(notes, "; "), nil
}

// releaseResources tears down after a fatal failure, where the cleanup step
// never ran. Stop precedes revoke so the stop still has a valid session.
func (s *Service) releaseResources(ctx context.Context, r *run) {
	if r.released {
		return
	}
	if _, err := s.stepCleanup(ctx, r); err != nil {
		s.logger.ErrorContext(ctx, "resource teardown failed", "workflow_id", r.id, "error", err)
	}
}

func (s *Service) runArgv(ctx context.Context, r *run, argv []string) (string, error) {
	res := s.exec(ctx, r, capability.OpExecuteCommand, map[string]any{
		"containerRef": r.containerRef,
		"argv":         argv,
	})
	if !res.Success {
		return "", resultError(res)
	}
	stdout, _ := res.Data["stdout"].(string)
	return strings.TrimSpace(stdout), nil
}

func (s *Service) exec(ctx context.Context, r *run, op capability.Operation, params map[string]any) gwmodels.OperationResult {
	return s.gateway.ExecuteOperation(ctx, r.session, gwmodels.OperationRequest{
		Operation:  op,
		Parameters: params,
	})
}

func resultError(res gwmodels.OperationResult) error {
	code := res.ErrorCode
	if code == "" {
		code = dErrors.CodeStepFailed
	}
	return dErrors.New(code, res.Error)
}

func (s *Service) beginStep(ctx context.Context, id string, index int, name string) {
	now := s.now()
	_, err := s.workflows.Update(ctx, id, func(wf *models.Workflow) error {
		wf.CurrentStepIndex = index
		step := wf.Steps[index]
		step.Status = models.StepRunning
		step.StartTime = &now
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "could not mark step running", "workflow_id", id, "step", name, "error", err)
	}
	s.publish(wfevents.StepStarted, id, name, "")
}

func (s *Service) finishStep(ctx context.Context, id string, index int, status models.StepStatus, output string, stepErr error) {
	now := s.now()
	_, err := s.workflows.Update(ctx, id, func(wf *models.Workflow) error {
		step := wf.Steps[index]
		step.Status = status
		step.EndTime = &now
		step.Output = output
		if stepErr != nil {
			step.Error = stepErr.Error()
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "could not record step outcome", "workflow_id", id, "error", err)
	}
}

func (s *Service) completeWorkflow(ctx context.Context, r *run) {
	now := s.now()
	_, err := s.workflows.Update(ctx, r.id, func(wf *models.Workflow) error {
		if wf.Status.Terminal() {
			return nil
		}
		wf.Status = models.StatusCompleted
		wf.EndTime = &now
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "could not complete workflow", "workflow_id", r.id, "error", err)
		return
	}
	s.logger.InfoContext(ctx, "deployment completed", "workflow_id", r.id)
	s.publish(wfevents.WorkflowCompleted, r.id, "", "")
	s.emitAudit(ctx, audit.EventWorkflowCompleted, r, "completed", "")
	if s.metrics != nil {
		s.metrics.IncrementWorkflowsFinished(string(models.StatusCompleted))
	}
}

func (s *Service) failWorkflow(ctx context.Context, r *run, stepName string, stepErr error) {
	now := s.now()
	msg := fmt.Sprintf("step %s: %v", stepName, stepErr)
	_, err := s.workflows.Update(ctx, r.id, func(wf *models.Workflow) error {
		wf.Status = models.StatusFailed
		wf.Error = msg
		wf.EndTime = &now
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "could not record workflow failure", "workflow_id", r.id, "error", err)
	}
	s.logger.ErrorContext(ctx, "deployment failed",
		"workflow_id", r.id, "step", stepName, "error", stepErr)
	s.publish(wfevents.WorkflowFailed, r.id, stepName, msg)
	s.emitAudit(ctx, audit.EventWorkflowFailed, r, "failed", msg)
	if s.metrics != nil {
		s.metrics.IncrementWorkflowsFinished(string(models.StatusFailed))
	}
}

// attemptRecovery delegates the failure to the recovery collaborator under a
// fresh, narrower grant. The recovery grant is revoked whatever the handler
// does, and the recorded outcome never changes the workflow's failed status.
func (s *Service) attemptRecovery(ctx context.Context, r *run, stepName string, stepErr error) {
	if s.recovery == nil {
		return
	}
	recTask := r.id + "-recovery"
	grant, err := s.issuer.CreateGrant(ctx, capservice.CreateGrantRequest{
		SubjectID:       r.req.SubjectID,
		ResourceID:      r.resourceID,
		TaskID:          recTask,
		Scopes:          recoveryScopes,
		DurationMinutes: s.recoveryMinutes,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "could not mint recovery grant", "workflow_id", r.id, "error", err)
		if s.metrics != nil {
			s.metrics.IncrementRecoveryAttempts("grant_failed")
		}
		return
	}
	defer s.issuer.Revoke(ctx, grant.SubjectID, grant.ResourceID, grant.TaskID)

	event := recovery.FailureEvent{
		Context: recovery.FailureContext{
			SubjectID:    r.req.SubjectID,
			ResourceID:   r.resourceID,
			WorkflowID:   r.id,
			ContainerRef: r.containerRef,
			Session: gwmodels.SessionContext{
				SubjectID:     grant.SubjectID,
				ResourceID:    grant.ResourceID,
				TaskID:        grant.TaskID,
				SessionSecret: grant.SessionSecret,
			},
		},
		Failure: recovery.FailureDetail{
			Type:      recovery.Classify(stepName, stepErr),
			Operation: stepName,
			Error:     stepErr.Error(),
			Timestamp: s.now(),
			Attempts:  1,
		},
	}
	outcome, herr := s.recovery.HandleFailure(ctx, event)
	if herr != nil {
		outcome = recovery.Outcome{StrategyUsed: "none", Error: herr.Error()}
	}
	if _, uerr := s.workflows.Update(ctx, r.id, func(wf *models.Workflow) error {
		wf.Recovery = &outcome
		return nil
	}); uerr != nil {
		s.logger.ErrorContext(ctx, "could not record recovery outcome", "workflow_id", r.id, "error", uerr)
	}

	label := "failed"
	if outcome.Success {
		label = "succeeded"
	}
	s.logger.InfoContext(ctx, "recovery attempted",
		"workflow_id", r.id,
		"strategy", outcome.StrategyUsed,
		"success", outcome.Success,
	)
	s.emitAudit(ctx, audit.EventRecoveryAttempted, r, label, outcome.StrategyUsed)
	if s.metrics != nil {
		s.metrics.IncrementRecoveryAttempts(label)
	}
}

// CancelWorkflow flips a running workflow to cancelled. Cancellation is
// advisory: the in-flight step runs to completion, remaining steps are
// skipped, and the runner stops at the next step boundary.
func (s *Service) CancelWorkflow(ctx context.Context, id string) error {
	now := s.now()
	_, err := s.workflows.Update(ctx, id, func(wf *models.Workflow) error {
		if wf.Status != models.StatusRunning {
			return dErrors.New(dErrors.CodeInvalidState,
				fmt.Sprintf("workflow is %s, only running workflows can be cancelled", wf.Status))
		}
		wf.Status = models.StatusCancelled
		wf.EndTime = &now
		for _, step := range wf.Steps {
			if step.Status == models.StepPending {
				step.Status = models.StepSkipped
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "workflow not found")
		}
		return err
	}
	s.logger.InfoContext(ctx, "deployment cancelled", "workflow_id", id)
	s.emitAudit(ctx, audit.EventWorkflowCancelled, &run{id: id}, "cancelled", "")
	if s.metrics != nil {
		s.metrics.IncrementWorkflowsFinished(string(models.StatusCancelled))
	}
	return nil
}

// GetWorkflow returns a snapshot of the workflow record.
func (s *Service) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := s.workflows.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "workflow not found")
		}
		return nil, err
	}
	return wf, nil
}

// ListWorkflows returns snapshots of every workflow record.
func (s *Service) ListWorkflows(ctx context.Context) []*models.Workflow {
	return s.workflows.List(ctx)
}

// RunDeploymentWithRetry runs a deployment to a terminal state and retries
// the whole deployment, as a fresh workflow, when it fails transiently.
// Deterministic failures and validation errors are never retried. The last
// attempt's workflow is returned alongside the aggregated error.
func (s *Service) RunDeploymentWithRetry(ctx context.Context, req models.DeploymentRequest, cfg retry.Config) (*models.Workflow, error) {
	var last *models.Workflow
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		handle, err := s.StartDeployment(ctx, req)
		if err != nil {
			return err
		}
		wf, err := handle.Wait(ctx)
		if err != nil {
			return err
		}
		last = wf
		if wf.Status == models.StatusFailed {
			return errors.New(wf.Error)
		}
		return nil
	})
	return last, err
}

func (s *Service) isTerminal(ctx context.Context, id string) bool {
	wf, err := s.workflows.Get(ctx, id)
	if err != nil {
		return true
	}
	return wf.Status.Terminal()
}

func (s *Service) publish(typ wfevents.Type, workflowID, stepName, errText string) {
	s.events.Publish(wfevents.Event{
		Type:       typ,
		WorkflowID: workflowID,
		StepName:   stepName,
		Error:      errText,
		Timestamp:  s.now(),
	})
}

func (s *Service) emitAudit(ctx context.Context, event audit.AuditEvent, r *run, decision, reason string) {
	if s.auditPub == nil {
		return
	}
	err := s.auditPub.Emit(ctx, audit.Event{
		SubjectID:  r.req.SubjectID,
		ResourceID: r.resourceID,
		TaskID:     r.id,
		WorkflowID: r.id,
		Action:     string(event),
		Decision:   decision,
		Reason:     reason,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event", "error", err, "event", string(event))
	}
}
