// Package service implements the authorization gateway. Every privileged
// operation flows through ExecuteOperation, which validates the caller's
// grant, checks the request schema, enforces command and repository policy,
// and only then dispatches to the compute backend. All failure is data: the
// gateway returns discriminated results and never lets a backend error or
// panic escape its boundary.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bastion/internal/audit"
	"bastion/internal/backend"
	capability "bastion/internal/capability/models"
	"bastion/internal/cleanupmgr"
	"bastion/internal/gateway/history"
	"bastion/internal/gateway/models"
	"bastion/internal/gateway/policy"
	"bastion/internal/platform/metrics"
	dErrors "bastion/pkg/domain-errors"
)

const (
	defaultCommandTimeout = 30 * time.Second
	defaultLogTail        = 100

	// containerCleanupPriority orders container teardown ahead of
	// lower-priority bookkeeping tasks at shutdown.
	containerCleanupPriority = 10
)

// Issuer validates grants and reports their operation sets. The gateway
// borrows a grant reference per call and never retains issuer state.
type Issuer interface {
	Validate(ctx context.Context, subjectID, resourceID, taskID, sessionSecret string) bool
	AllowedOperations(ctx context.Context, subjectID, resourceID, taskID string) []capability.Operation
}

// HistoryStore records every operation result for audit.
type HistoryStore interface {
	Append(ctx context.Context, entry history.Entry) error
}

// CleanupRegistrar receives teardown tasks for resources the gateway creates.
type CleanupRegistrar interface {
	Register(task cleanupmgr.Task)
	Deregister(id string)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

type Service struct {
	issuer   Issuer
	compute  backend.ComputeBackend
	policy   *policy.Policy
	history  HistoryStore
	cleanup  CleanupRegistrar
	logger   *slog.Logger
	auditPub AuditPublisher
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	timeout  time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPub = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCleanupRegistrar wires the cleanup manager that reclaims containers
// the caller never stops explicitly.
func WithCleanupRegistrar(registrar CleanupRegistrar) Option {
	return func(s *Service) {
		s.cleanup = registrar
	}
}

// WithCommandTimeout overrides the default backend command timeout.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithClock overrides the time source for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(issuer Issuer, compute backend.ComputeBackend, pol *policy.Policy, hist HistoryStore, opts ...Option) (*Service, error) {
	if issuer == nil || compute == nil || hist == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "issuer, compute backend, and history store are required")
	}
	if pol == nil {
		pol = policy.Default()
	}
	svc := &Service{
		issuer:  issuer,
		compute: compute,
		policy:  pol,
		history: hist,
		tracer:  otel.Tracer("bastion/gateway"),
		now:     time.Now,
		timeout: defaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// ExecuteOperation validates, authorizes, policy-checks, and dispatches one
// operation. The result is appended to the subject's operation history
// regardless of outcome.
func (s *Service) ExecuteOperation(ctx context.Context, session models.SessionContext, req models.OperationRequest) models.OperationResult {
	ctx, span := s.tracer.Start(ctx, "gateway.execute_operation",
		trace.WithAttributes(
			attribute.String("operation", string(req.Operation)),
			attribute.String("subject_id", session.SubjectID),
		),
	)
	defer span.End()

	started := s.now()
	result := s.execute(ctx, session, req)
	if s.metrics != nil {
		s.metrics.ObserveOperationLatency(string(req.Operation), s.now().Sub(started).Seconds())
	}

	s.record(ctx, session, req, result)
	return result
}

func (s *Service) execute(ctx context.Context, session models.SessionContext, req models.OperationRequest) models.OperationResult {
	// Fail closed: no backend call is ever attempted without a live grant.
	if !s.issuer.Validate(ctx, session.SubjectID, session.ResourceID, session.TaskID, session.SessionSecret) {
		return s.failure(dErrors.CodeUnauthorized, "invalid session")
	}

	if err := req.Validate(); err != nil {
		return s.failureFromError(err)
	}

	if !s.operationGranted(ctx, session, req.Operation) {
		return s.failure(dErrors.CodeUnauthorized, fmt.Sprintf("operation %s not permitted by grant", req.Operation))
	}

	if err := s.checkPolicy(req); err != nil {
		s.policyDenied(ctx, session, req, err)
		return s.failureFromError(err)
	}

	return s.dispatch(ctx, session, req)
}

func (s *Service) operationGranted(ctx context.Context, session models.SessionContext, op capability.Operation) bool {
	for _, allowed := range s.issuer.AllowedOperations(ctx, session.SubjectID, session.ResourceID, session.TaskID) {
		if allowed == op {
			return true
		}
	}
	return false
}

// checkPolicy applies the command and repository rules for the operations
// that carry caller-controlled content.
func (s *Service) checkPolicy(req models.OperationRequest) error {
	switch req.Operation {
	case capability.OpExecuteCommand:
		if argv, ok := req.ArgvParam(); ok {
			return s.policy.CheckArgv(argv)
		}
		command, _ := req.StringParam("command")
		return s.policy.CheckCommand(command)
	case capability.OpGitClone:
		repoURL, _ := req.StringParam("repoUrl")
		return s.policy.CheckRepoURL(repoURL)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, session models.SessionContext, req models.OperationRequest) models.OperationResult {
	switch req.Operation {
	case capability.OpCreateContainer:
		return s.createContainer(ctx, req)
	case capability.OpExecuteCommand:
		return s.executeCommand(ctx, req)
	case capability.OpGetStatus:
		return s.getStatus(ctx, req)
	case capability.OpGetLogs:
		return s.getLogs(ctx, req)
	case capability.OpStopContainer:
		return s.stopContainer(ctx, req)
	case capability.OpGitClone, capability.OpGitPull, capability.OpGitCommit,
		capability.OpGitPush, capability.OpGitBranch, capability.OpGitStatus:
		return s.gitOperation(ctx, req)
	}
	// Unreachable: Validate rejected unknown operations already.
	return s.failure(dErrors.CodeValidation, fmt.Sprintf("unknown operation: %s", req.Operation))
}

func (s *Service) createContainer(ctx context.Context, req models.OperationRequest) models.OperationResult {
	name, _ := req.StringParam("name")
	template, _ := req.StringParam("template")

	spec := backend.ContainerSpec{
		Name:     policy.SanitizeArgument(name),
		Template: policy.SanitizeArgument(template),
		Env:      envParam(req),
	}
	created, err := s.compute.CreateContainer(ctx, spec)
	if err != nil {
		return s.backendFailure(err)
	}

	if s.cleanup != nil {
		ref := created.Ref
		s.cleanup.Register(cleanupmgr.Task{
			ID:       containerTaskID(ref),
			Name:     "stop container " + ref,
			Priority: containerCleanupPriority,
			Cleanup: func(ctx context.Context) error {
				return s.compute.Stop(ctx, ref)
			},
		})
	}

	return s.success(map[string]any{
		"ref":    created.Ref,
		"status": created.Status,
		"ip":     created.IP,
		"fqdn":   created.FQDN,
	})
}

func (s *Service) executeCommand(ctx context.Context, req models.OperationRequest) models.OperationResult {
	ref, _ := req.StringParam("containerRef")

	argv, ok := req.ArgvParam()
	if !ok {
		// Legacy string path: the command already passed the allow/deny
		// check; field-split it into a vector so the backend never sees a
		// shell string.
		command, _ := req.StringParam("command")
		argv = strings.Fields(command)
	}

	timeout := time.Duration(req.IntParam("timeoutMs", int(s.timeout/time.Millisecond))) * time.Millisecond
	return s.runCommand(ctx, ref, argv, timeout)
}

func (s *Service) gitOperation(ctx context.Context, req models.OperationRequest) models.OperationResult {
	ref, _ := req.StringParam("containerRef")

	var argv []string
	switch req.Operation {
	case capability.OpGitClone:
		repoURL, _ := req.StringParam("repoUrl")
		argv = []string{"git", "clone", repoURL, "."}
	case capability.OpGitPull:
		argv = []string{"git", "pull"}
	case capability.OpGitCommit:
		message, _ := req.StringParam("message")
		argv = []string{"git", "commit", "-am", policy.SanitizeArgument(message)}
	case capability.OpGitPush:
		argv = []string{"git", "push"}
		if branch, ok := req.StringParam("branch"); ok {
			argv = append(argv, "origin", policy.SanitizeArgument(branch))
		}
	case capability.OpGitBranch:
		branch, _ := req.StringParam("branch")
		argv = []string{"git", "checkout", "-b", policy.SanitizeArgument(branch)}
	case capability.OpGitStatus:
		argv = []string{"git", "status"}
	}

	return s.runCommand(ctx, ref, argv, s.timeout)
}

func (s *Service) runCommand(ctx context.Context, ref string, argv []string, timeout time.Duration) models.OperationResult {
	res, err := s.compute.ExecuteCommand(ctx, ref, argv, timeout)
	if err != nil {
		return s.backendFailure(err)
	}

	data := map[string]any{
		"exitCode": res.ExitCode,
		"stdout":   res.Stdout,
		"stderr":   res.Stderr,
	}
	if res.ExitCode != 0 {
		result := s.failure(dErrors.CodeBackend, commandFailureMessage(res))
		result.Data = data
		return result
	}
	return s.success(data)
}

func (s *Service) getStatus(ctx context.Context, req models.OperationRequest) models.OperationResult {
	ref, _ := req.StringParam("containerRef")
	status, err := s.compute.GetStatus(ctx, ref)
	if err != nil {
		return s.backendFailure(err)
	}
	return s.success(map[string]any{"status": status})
}

func (s *Service) getLogs(ctx context.Context, req models.OperationRequest) models.OperationResult {
	ref, _ := req.StringParam("containerRef")
	logs, err := s.compute.GetLogs(ctx, ref, req.IntParam("tail", defaultLogTail))
	if err != nil {
		return s.backendFailure(err)
	}
	return s.success(map[string]any{"logs": logs})
}

func (s *Service) stopContainer(ctx context.Context, req models.OperationRequest) models.OperationResult {
	ref, _ := req.StringParam("containerRef")
	if err := s.compute.Stop(ctx, ref); err != nil {
		return s.backendFailure(err)
	}
	if s.cleanup != nil {
		s.cleanup.Deregister(containerTaskID(ref))
	}
	return s.success(map[string]any{"stopped": true})
}

func (s *Service) success(data map[string]any) models.OperationResult {
	return models.OperationResult{
		Success:     true,
		Data:        data,
		OperationID: uuid.NewString(),
		Timestamp:   s.now(),
	}
}

func (s *Service) failure(code dErrors.Code, message string) models.OperationResult {
	return models.OperationResult{
		Success:     false,
		Error:       message,
		ErrorCode:   code,
		OperationID: uuid.NewString(),
		Timestamp:   s.now(),
	}
}

func (s *Service) failureFromError(err error) models.OperationResult {
	return s.failure(dErrors.CodeOf(err), err.Error())
}

// backendFailure converts any backend error into a failed result. Backend
// exceptions never propagate past the gateway.
func (s *Service) backendFailure(err error) models.OperationResult {
	return s.failure(dErrors.CodeBackend, err.Error())
}

func (s *Service) record(ctx context.Context, session models.SessionContext, req models.OperationRequest, result models.OperationResult) {
	if err := s.history.Append(ctx, history.Entry{
		SubjectID: session.SubjectID,
		Request:   req,
		Result:    result,
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to append operation history", "error", err)
	}

	outcome := "success"
	if !result.Success {
		outcome = "failure"
		s.logger.WarnContext(ctx, "operation failed",
			"operation", req.Operation,
			"subject_id", session.SubjectID,
			"error_code", result.ErrorCode,
			"error", result.Error,
		)
	} else {
		s.logger.InfoContext(ctx, "operation executed",
			"operation", req.Operation,
			"subject_id", session.SubjectID,
			"operation_id", result.OperationID,
		)
	}

	if s.metrics != nil {
		s.metrics.IncrementOperationsExecuted(string(req.Operation), outcome)
	}
	if s.auditPub != nil {
		err := s.auditPub.Emit(ctx, audit.Event{
			SubjectID:  session.SubjectID,
			ResourceID: session.ResourceID,
			TaskID:     session.TaskID,
			Action:     string(audit.EventOperationExecuted),
			Operation:  string(req.Operation),
			Decision:   outcome,
			Reason:     result.Error,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to emit audit event", "error", err)
		}
	}
}

func (s *Service) policyDenied(ctx context.Context, session models.SessionContext, req models.OperationRequest, err error) {
	s.logger.WarnContext(ctx, "policy denied operation",
		"operation", req.Operation,
		"subject_id", session.SubjectID,
		"reason", err.Error(),
	)
	if s.metrics != nil {
		s.metrics.IncrementPolicyDenials(string(req.Operation))
	}
	if s.auditPub != nil {
		emitErr := s.auditPub.Emit(ctx, audit.Event{
			SubjectID:  session.SubjectID,
			ResourceID: session.ResourceID,
			TaskID:     session.TaskID,
			Action:     string(audit.EventPolicyDenied),
			Operation:  string(req.Operation),
			Decision:   "denied",
			Reason:     err.Error(),
		})
		if emitErr != nil {
			s.logger.ErrorContext(ctx, "failed to emit audit event", "error", emitErr)
		}
	}
}

func containerTaskID(ref string) string {
	return "container-" + ref
}

func commandFailureMessage(res *backend.CommandResult) string {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	if msg == "" {
		msg = fmt.Sprintf("command exited with code %d", res.ExitCode)
	}
	return msg
}

func envParam(req models.OperationRequest) map[string]string {
	raw, ok := req.Parameters["env"]
	if !ok {
		return nil
	}
	switch env := raw.(type) {
	case map[string]string:
		out := make(map[string]string, len(env))
		for k, v := range env {
			out[k] = policy.SanitizeArgument(v)
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(env))
		for k, v := range env {
			if s, ok := v.(string); ok {
				out[k] = policy.SanitizeArgument(s)
			}
		}
		return out
	}
	return nil
}
