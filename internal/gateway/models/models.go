// Package models defines the gateway's request and result shapes and the
// per-operation parameter schemas.
package models

import (
	"fmt"
	"time"

	capability "bastion/internal/capability/models"
	dErrors "bastion/pkg/domain-errors"
)

// SessionContext identifies the grant a request executes under.
type SessionContext struct {
	SubjectID     string
	ResourceID    string
	TaskID        string
	SessionSecret string
}

// OperationRequest asks the gateway to perform one backend operation.
type OperationRequest struct {
	Operation  capability.Operation
	Parameters map[string]any
}

// OperationResult is the discriminated outcome of a gateway call. Callers
// check Success; the gateway never surfaces failures as panics or raw errors.
type OperationResult struct {
	Success     bool
	Data        map[string]any
	Error       string
	ErrorCode   dErrors.Code
	OperationID string
	Timestamp   time.Time
}

// requiredParams lists the string parameters every operation must carry.
// executeCommand is special-cased: it needs containerRef plus either a
// command string or an argv list.
var requiredParams = map[capability.Operation][]string{
	capability.OpCreateContainer: {"name", "template"},
	capability.OpExecuteCommand:  {"containerRef"},
	capability.OpGetStatus:       {"containerRef"},
	capability.OpGetLogs:         {"containerRef"},
	capability.OpStopContainer:   {"containerRef"},
	capability.OpGitClone:        {"containerRef", "repoUrl"},
	capability.OpGitPull:         {"containerRef"},
	capability.OpGitCommit:       {"containerRef", "message"},
	capability.OpGitPush:         {"containerRef"},
	capability.OpGitBranch:       {"containerRef", "branch"},
	capability.OpGitStatus:       {"containerRef"},
}

// KnownOperation reports whether op is in the enumerated operation set.
func KnownOperation(op capability.Operation) bool {
	_, ok := requiredParams[op]
	return ok
}

// StringParam returns the named parameter as a non-empty string.
func (r *OperationRequest) StringParam(name string) (string, bool) {
	v, ok := r.Parameters[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ArgvParam returns the "argv" parameter as a string slice. It accepts both
// []string and []any-of-string, which is what JSON decoding produces.
func (r *OperationRequest) ArgvParam() ([]string, bool) {
	v, ok := r.Parameters["argv"]
	if !ok {
		return nil, false
	}
	switch argv := v.(type) {
	case []string:
		if len(argv) == 0 {
			return nil, false
		}
		return argv, true
	case []any:
		if len(argv) == 0 {
			return nil, false
		}
		out := make([]string, 0, len(argv))
		for _, item := range argv {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// IntParam returns the named parameter as an int, tolerating the float64
// values JSON decoding produces.
func (r *OperationRequest) IntParam(name string, fallback int) int {
	v, ok := r.Parameters[name]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}

// Validate checks the request against the operation schema table. Unknown
// operations and missing required parameters fail with a validation error.
func (r *OperationRequest) Validate() error {
	required, ok := requiredParams[r.Operation]
	if !ok {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown operation: %s", r.Operation))
	}
	for _, name := range required {
		if _, ok := r.StringParam(name); !ok {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("operation %s requires parameter %s", r.Operation, name))
		}
	}
	if r.Operation == capability.OpExecuteCommand {
		_, hasCommand := r.StringParam("command")
		_, hasArgv := r.ArgvParam()
		if !hasCommand && !hasArgv {
			return dErrors.New(dErrors.CodeValidation, "executeCommand requires a command string or an argv list")
		}
	}
	return nil
}
