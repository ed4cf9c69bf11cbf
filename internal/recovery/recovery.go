// Package recovery defines the failure recovery port and the failure
// classification the orchestrator uses when a deployment reaches a terminal
// failure. Recovery is diagnostic and remedial, never retroactive: a
// recovered workflow still reports failed.
package recovery

import (
	"context"
	"strings"
	"time"

	gwmodels "bastion/internal/gateway/models"
	"bastion/pkg/retry"
)

// FailureType classifies what went wrong, derived from the failing step's
// name and error text.
type FailureType string

const (
	FailureNetwork  FailureType = "network"
	FailureBuild    FailureType = "build"
	FailureTest     FailureType = "test"
	FailureResource FailureType = "resource"
	FailureUnknown  FailureType = "unknown"
)

// Classify derives a failure type from the failing step and its error.
func Classify(stepName string, err error) FailureType {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}
	switch {
	case retry.IsTransient(err):
		return FailureNetwork
	case strings.Contains(stepName, "test"):
		return FailureTest
	case strings.Contains(stepName, "build") || strings.Contains(msg, "build"):
		return FailureBuild
	case strings.Contains(stepName, "resource") || strings.Contains(stepName, "container") ||
		strings.Contains(msg, "container") || strings.Contains(msg, "out of memory"):
		return FailureResource
	default:
		return FailureUnknown
	}
}

// FailureContext identifies where the failure happened and carries the
// short-lived recovery session the handler may use for read-only inspection.
type FailureContext struct {
	SubjectID    string
	ResourceID   string
	WorkflowID   string
	ContainerRef string
	Session      gwmodels.SessionContext
}

// FailureDetail describes the failure itself.
type FailureDetail struct {
	Type      FailureType
	Operation string
	Error     string
	Timestamp time.Time
	Attempts  int
}

// FailureEvent is handed to the recovery collaborator.
type FailureEvent struct {
	Context FailureContext
	Failure FailureDetail
}

// Outcome reports what the recovery collaborator did.
type Outcome struct {
	Success         bool
	StrategyUsed    string
	Resolution      string
	Error           string
	Recommendations []string
}

// Handler is the failure recovery collaborator contract.
type Handler interface {
	HandleFailure(ctx context.Context, event FailureEvent) (Outcome, error)
}
