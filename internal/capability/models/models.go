// Package models defines grants, scopes, and the static scope-to-operation
// table for the capability issuer.
package models

import (
	"sort"
	"time"
)

// Operation is a concrete backend action the gateway may dispatch after
// policy checks pass.
type Operation string

const (
	OpCreateContainer Operation = "createContainer"
	OpExecuteCommand  Operation = "executeCommand"
	OpGetStatus       Operation = "getStatus"
	OpGetLogs         Operation = "getLogs"
	OpStopContainer   Operation = "stopContainer"
	OpGitClone        Operation = "gitClone"
	OpGitPull         Operation = "gitPull"
	OpGitCommit       Operation = "gitCommit"
	OpGitPush         Operation = "gitPush"
	OpGitBranch       Operation = "gitBranch"
	OpGitStatus       Operation = "gitStatus"
)

// Scope is an abstract named permission mapped to one or more operations.
type Scope string

const (
	ScopeContainerCreate Scope = "container:create"
	ScopeContainerExec   Scope = "container:exec"
	ScopeContainerRead   Scope = "container:read"
	ScopeContainerStop   Scope = "container:stop"
	ScopeGitRead         Scope = "git:read"
	ScopeGitWrite        Scope = "git:write"
)

// scopeOperations is the fixed table mapping scopes to the operations they
// authorize. AllowedOperations on a grant is exactly the union of the rows
// for its requested scopes.
var scopeOperations = map[Scope][]Operation{
	ScopeContainerCreate: {OpCreateContainer},
	ScopeContainerExec:   {OpExecuteCommand},
	ScopeContainerRead:   {OpGetStatus, OpGetLogs},
	ScopeContainerStop:   {OpStopContainer},
	ScopeGitRead:         {OpGitClone, OpGitPull, OpGitStatus},
	ScopeGitWrite:        {OpGitCommit, OpGitPush, OpGitBranch},
}

// KnownScope reports whether s is in the fixed known-scope set.
func KnownScope(s Scope) bool {
	_, ok := scopeOperations[s]
	return ok
}

// OperationsForScopes computes the deterministic union of the operation
// table rows for the given scopes. Unknown scopes contribute nothing; the
// result is sorted so equal scope sets always produce equal slices.
func OperationsForScopes(scopes []Scope) []Operation {
	seen := make(map[Operation]struct{})
	for _, scope := range scopes {
		for _, op := range scopeOperations[scope] {
			seen[op] = struct{}{}
		}
	}
	ops := make([]Operation, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// GrantKey identifies the one live grant per (subject, resource, task) triple.
type GrantKey struct {
	SubjectID  string
	ResourceID string
	TaskID     string
}

// Grant is the capability handed back to a caller. SessionSecret is the only
// copy of the plaintext secret; stores keep a hash.
type Grant struct {
	SubjectID         string
	ResourceID        string
	TaskID            string
	SessionSecret     string
	AllowedOperations []Operation
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Key returns the grant's table key.
func (g *Grant) Key() GrantKey {
	return GrantKey{SubjectID: g.SubjectID, ResourceID: g.ResourceID, TaskID: g.TaskID}
}

// GrantRecord is the stored form of a grant. It carries the bcrypt hash of
// the session secret, never the plaintext.
type GrantRecord struct {
	Key               GrantKey
	SecretHash        string
	AllowedOperations []Operation
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r *GrantRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Allows reports whether the record authorizes the given operation.
func (r *GrantRecord) Allows(op Operation) bool {
	for _, allowed := range r.AllowedOperations {
		if allowed == op {
			return true
		}
	}
	return false
}
