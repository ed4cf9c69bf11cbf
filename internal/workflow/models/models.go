package models

import (
	"time"

	"bastion/internal/recovery"
)

// Status is the workflow lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further status transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is one unit of work inside a workflow.
type Step struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Output     string     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	RetryCount int        `json:"retry_count"`
}

// Workflow is a deployment run: an ordered step list plus lifecycle state.
type Workflow struct {
	ID               string            `json:"id"`
	SubjectID        string            `json:"subject_id"`
	ResourceID       string            `json:"resource_id"`
	ProjectName      string            `json:"project_name"`
	Status           Status            `json:"status"`
	Steps            []*Step           `json:"steps"`
	CurrentStepIndex int               `json:"current_step_index"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          *time.Time        `json:"end_time,omitempty"`
	Error            string            `json:"error,omitempty"`
	Artifacts        []string          `json:"artifacts,omitempty"`
	Recovery         *recovery.Outcome `json:"recovery,omitempty"`
}

// Clone returns a deep copy so stored workflows never leak shared state.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Steps = make([]*Step, len(w.Steps))
	for i, st := range w.Steps {
		sc := *st
		c.Steps[i] = &sc
	}
	if w.Artifacts != nil {
		c.Artifacts = append([]string(nil), w.Artifacts...)
	}
	if w.Recovery != nil {
		rc := *w.Recovery
		rc.Recommendations = append([]string(nil), w.Recovery.Recommendations...)
		c.Recovery = &rc
	}
	return &c
}

// StepByName returns the named step, or nil.
func (w *Workflow) StepByName(name string) *Step {
	for _, st := range w.Steps {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// DeploymentRequest is the input to a deployment run.
type DeploymentRequest struct {
	SubjectID    string            `json:"subject_id" validate:"required,notblank"`
	ProjectName  string            `json:"project_name" validate:"required,notblank,max=64"`
	Template     string            `json:"template" validate:"omitempty,max=64"`
	SourceRepo   string            `json:"source_repo" validate:"omitempty,url"`
	BuildCommand string            `json:"build_command" validate:"omitempty,max=512"`
	OutputPath   string            `json:"output_path" validate:"omitempty,max=256"`
	EnvVars      map[string]string `json:"env_vars" validate:"omitempty,max=32"`
}
