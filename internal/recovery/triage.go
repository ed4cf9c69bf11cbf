package recovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	gwmodels "bastion/internal/gateway/models"
)

// OperationExecutor is the slice of the authorization gateway the triage
// handler needs. Every call goes through the gateway so the recovery session
// is checked the same way any caller's would be.
type OperationExecutor interface {
	ExecuteOperation(ctx context.Context, session gwmodels.SessionContext, req gwmodels.OperationRequest) gwmodels.OperationResult
}

// Triage is the default recovery handler. It inspects the failed deployment
// through read-only gateway operations and produces a diagnosis with
// recommendations. It never mutates the workload beyond stopping a wedged
// container for resource failures.
type Triage struct {
	gateway OperationExecutor
	logger  *slog.Logger
	logTail int
}

type TriageOption func(*Triage)

func WithLogger(l *slog.Logger) TriageOption {
	return func(t *Triage) { t.logger = l }
}

// WithLogTail bounds how many log lines a diagnosis pulls from the container.
func WithLogTail(n int) TriageOption {
	return func(t *Triage) { t.logTail = n }
}

func NewTriage(gateway OperationExecutor, opts ...TriageOption) *Triage {
	t := &Triage{
		gateway: gateway,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		logTail: 50,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Triage) HandleFailure(ctx context.Context, event FailureEvent) (Outcome, error) {
	t.logger.Info("triaging deployment failure",
		"workflow_id", event.Context.WorkflowID,
		"failure_type", event.Failure.Type,
		"operation", event.Failure.Operation)

	switch event.Failure.Type {
	case FailureNetwork:
		return Outcome{
			Success:      true,
			StrategyUsed: "retry-after-backoff",
			Resolution:   "transient network failure, safe to retry the deployment",
			Recommendations: []string{
				"retry the deployment with backoff",
				"check upstream registry and repository availability if retries keep failing",
			},
		}, nil
	case FailureBuild:
		return t.inspectLogs(ctx, event, "inspect-build-logs",
			"review compiler and bundler output in the excerpt",
			"verify build command and lockfile match the source revision")
	case FailureTest:
		return t.inspectLogs(ctx, event, "inspect-test-output",
			"review failing assertions in the excerpt",
			"run the failing suite locally against the same revision")
	case FailureResource:
		return t.stopAndReport(ctx, event)
	default:
		return Outcome{
			Success:      false,
			StrategyUsed: "manual-investigation",
			Resolution:   fmt.Sprintf("no automated strategy for %q failures", event.Failure.Type),
			Recommendations: []string{
				"inspect the workflow record and container logs manually",
			},
		}, nil
	}
}

func (t *Triage) inspectLogs(ctx context.Context, event FailureEvent, strategy string, recs ...string) (Outcome, error) {
	out := Outcome{StrategyUsed: strategy, Recommendations: recs}
	if event.Context.ContainerRef == "" {
		out.Resolution = "no container to inspect, diagnosis limited to the step error"
		out.Success = true
		return out, nil
	}
	res := t.gateway.ExecuteOperation(ctx, event.Context.Session, gwmodels.OperationRequest{
		Operation: "getLogs",
		Parameters: map[string]any{
			"containerRef": event.Context.ContainerRef,
			"tail":         t.logTail,
		},
	})
	if !res.Success {
		out.Error = res.Error
		out.Resolution = "could not pull container logs"
		return out, nil
	}
	logs, _ := res.Data["logs"].(string)
	out.Success = true
	out.Resolution = fmt.Sprintf("pulled last %d log lines from %s:\n%s", t.logTail, event.Context.ContainerRef, logs)
	return out, nil
}

func (t *Triage) stopAndReport(ctx context.Context, event FailureEvent) (Outcome, error) {
	out := Outcome{
		StrategyUsed: "stop-and-recreate",
		Recommendations: []string{
			"re-run the deployment with a larger container template",
			"check resource quotas for the tenant",
		},
	}
	if event.Context.ContainerRef == "" {
		out.Resolution = "resource failure before a container existed, nothing to stop"
		out.Success = true
		return out, nil
	}
	status := t.gateway.ExecuteOperation(ctx, event.Context.Session, gwmodels.OperationRequest{
		Operation:  "getStatus",
		Parameters: map[string]any{"containerRef": event.Context.ContainerRef},
	})
	if status.Success {
		if state, _ := status.Data["status"].(string); state == "running" {
			res := t.gateway.ExecuteOperation(ctx, event.Context.Session, gwmodels.OperationRequest{
				Operation:  "stopContainer",
				Parameters: map[string]any{"containerRef": event.Context.ContainerRef},
			})
			if !res.Success {
				out.Error = res.Error
				out.Resolution = "failed to stop the wedged container"
				return out, nil
			}
		}
	}
	out.Success = true
	out.Resolution = fmt.Sprintf("container %s stopped, recreate with more headroom", event.Context.ContainerRef)
	return out, nil
}
