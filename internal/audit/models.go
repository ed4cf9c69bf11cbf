package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time
	SubjectID  string
	ResourceID string
	TaskID     string
	Action     string
	Operation  string
	Decision   string
	Reason     string
	WorkflowID string
}

type AuditEvent string

const (
	EventGrantIssued       AuditEvent = "grant_issued"
	EventGrantRevoked      AuditEvent = "grant_revoked"
	EventGrantExpired      AuditEvent = "grant_expired"
	EventAuthFailed        AuditEvent = "auth_failed"
	EventOperationExecuted AuditEvent = "operation_executed"
	EventPolicyDenied      AuditEvent = "policy_denied"
	EventWorkflowStarted   AuditEvent = "workflow_started"
	EventWorkflowCompleted AuditEvent = "workflow_completed"
	EventWorkflowFailed    AuditEvent = "workflow_failed"
	EventWorkflowCancelled AuditEvent = "workflow_cancelled"
	EventRecoveryAttempted AuditEvent = "recovery_attempted"
)
