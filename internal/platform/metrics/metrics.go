package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	GrantsIssued  prometheus.Counter
	GrantsRevoked *prometheus.CounterVec
	ActiveGrants  prometheus.Gauge
	AuthFailures  prometheus.Counter

	// Gateway metrics
	OperationsExecuted *prometheus.CounterVec
	PolicyDenials      *prometheus.CounterVec
	OperationLatency   *prometheus.HistogramVec

	// Workflow metrics
	WorkflowsStarted  prometheus.Counter
	WorkflowsFinished *prometheus.CounterVec
	RunningWorkflows  prometheus.Gauge
	RecoveryAttempts  *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		GrantsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bastion_grants_issued_total",
			Help: "Total number of capability grants issued",
		}),
		GrantsRevoked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_grants_revoked_total",
			Help: "Total number of capability grants revoked, labeled by reason",
		}, []string{"reason"}),
		ActiveGrants: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_active_grants",
			Help: "Current number of live capability grants",
		}),
		AuthFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bastion_auth_failures_total",
			Help: "Total number of failed grant validations",
		}),
		OperationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_operations_executed_total",
			Help: "Total number of gateway operations, labeled by operation and outcome",
		}, []string{"operation", "outcome"}),
		PolicyDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_policy_denials_total",
			Help: "Total number of policy denials, labeled by rule",
		}, []string{"rule"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bastion_operation_latency_seconds",
			Help:    "Latency of gateway operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		WorkflowsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bastion_workflows_started_total",
			Help: "Total number of deployment workflows started",
		}),
		WorkflowsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_workflows_finished_total",
			Help: "Total number of deployment workflows reaching a terminal status, labeled by status",
		}, []string{"status"}),
		RunningWorkflows: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bastion_running_workflows",
			Help: "Current number of running deployment workflows",
		}),
		RecoveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bastion_recovery_attempts_total",
			Help: "Total number of failure recovery attempts, labeled by outcome",
		}, []string{"outcome"}),
		StepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bastion_step_duration_seconds",
			Help:    "Duration of workflow steps in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
	}
}

// IncrementGrantsIssued increments the grants issued counter by 1
func (m *Metrics) IncrementGrantsIssued() {
	m.GrantsIssued.Inc()
}

// IncrementGrantsRevoked increments the grants revoked counter with a reason label
func (m *Metrics) IncrementGrantsRevoked(reason string) {
	m.GrantsRevoked.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementActiveGrants(count int) {
	m.ActiveGrants.Add(float64(count))
}

func (m *Metrics) DecrementActiveGrants(count int) {
	m.ActiveGrants.Sub(float64(count))
}

func (m *Metrics) IncrementAuthFailures() {
	m.AuthFailures.Inc()
}

// IncrementOperationsExecuted increments the operations counter with operation and outcome labels
func (m *Metrics) IncrementOperationsExecuted(operation, outcome string) {
	m.OperationsExecuted.WithLabelValues(operation, outcome).Inc()
}

// IncrementPolicyDenials increments the policy denials counter with a rule label
func (m *Metrics) IncrementPolicyDenials(rule string) {
	m.PolicyDenials.WithLabelValues(rule).Inc()
}

// ObserveOperationLatency records the latency for a given operation
func (m *Metrics) ObserveOperationLatency(operation string, durationSeconds float64) {
	m.OperationLatency.WithLabelValues(operation).Observe(durationSeconds)
}

func (m *Metrics) IncrementWorkflowsStarted() {
	m.WorkflowsStarted.Inc()
}

// IncrementWorkflowsFinished increments the finished workflows counter with a terminal status label
func (m *Metrics) IncrementWorkflowsFinished(status string) {
	m.WorkflowsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementRunningWorkflows() {
	m.RunningWorkflows.Inc()
}

func (m *Metrics) DecrementRunningWorkflows() {
	m.RunningWorkflows.Dec()
}

// IncrementRecoveryAttempts increments the recovery attempts counter with an outcome label
func (m *Metrics) IncrementRecoveryAttempts(outcome string) {
	m.RecoveryAttempts.WithLabelValues(outcome).Inc()
}

// ObserveStepDuration records the duration of a workflow step
func (m *Metrics) ObserveStepDuration(step string, durationSeconds float64) {
	m.StepDuration.WithLabelValues(step).Observe(durationSeconds)
}
