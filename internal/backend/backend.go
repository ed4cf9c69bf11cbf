// Package backend defines the compute backend port. The backend is an
// external collaborator that performs actual container and command
// execution; the gateway never talks to compute infrastructure directly.
package backend

//go:generate mockgen -source=backend.go -destination=mocks/backend_mock.go -package=mocks

import (
	"context"
	"time"
)

// ContainerSpec describes the container a caller wants created.
type ContainerSpec struct {
	Name     string
	Template string
	Env      map[string]string
}

// Container describes a created or running container.
type Container struct {
	Ref    string
	Status string
	IP     string
	FQDN   string
}

// CommandResult carries the outcome of a command executed in a container.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ComputeBackend is the collaborator contract for container lifecycle and
// command execution. Commands are argv vectors, never shell-interpreted
// strings, so no shell injection surface exists at this boundary.
// All methods may fail with backend errors; callers must not let those
// propagate past the gateway boundary.
type ComputeBackend interface {
	CreateContainer(ctx context.Context, spec ContainerSpec) (*Container, error)
	ExecuteCommand(ctx context.Context, ref string, argv []string, timeout time.Duration) (*CommandResult, error)
	GetStatus(ctx context.Context, ref string) (string, error)
	GetLogs(ctx context.Context, ref string, tail int) (string, error)
	Stop(ctx context.Context, ref string) error
}
