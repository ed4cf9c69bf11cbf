// Package local provides an in-process compute backend for development and
// wiring tests. Containers are records in memory; commands succeed with
// canned output. Production deployments swap in a real backend behind the
// same interface.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bastion/internal/backend"
	"bastion/internal/sentinel"
)

type container struct {
	spec   backend.ContainerSpec
	status string
	logs   []string
}

// Backend is an in-memory ComputeBackend implementation.
type Backend struct {
	mu         sync.Mutex
	containers map[string]*container
}

func New() *Backend {
	return &Backend{containers: make(map[string]*container)}
}

func (b *Backend) CreateContainer(_ context.Context, spec backend.ContainerSpec) (*backend.Container, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref := "local-" + uuid.NewString()
	b.containers[ref] = &container{
		spec:   spec,
		status: "running",
		logs:   []string{fmt.Sprintf("container %s created from template %s", spec.Name, spec.Template)},
	}
	return &backend.Container{
		Ref:    ref,
		Status: "running",
		IP:     "127.0.0.1",
		FQDN:   spec.Name + ".local",
	}, nil
}

func (b *Backend) ExecuteCommand(_ context.Context, ref string, argv []string, _ time.Duration) (*backend.CommandResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[ref]
	if !ok {
		return nil, fmt.Errorf("container %s: %w", ref, sentinel.ErrNotFound)
	}
	if c.status != "running" {
		return nil, fmt.Errorf("container %s is %s: %w", ref, c.status, sentinel.ErrInvalidState)
	}
	line := strings.Join(argv, " ")
	c.logs = append(c.logs, "$ "+line)
	return &backend.CommandResult{ExitCode: 0, Stdout: "ok: " + line}, nil
}

func (b *Backend) GetStatus(_ context.Context, ref string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[ref]
	if !ok {
		return "", fmt.Errorf("container %s: %w", ref, sentinel.ErrNotFound)
	}
	return c.status, nil
}

func (b *Backend) GetLogs(_ context.Context, ref string, tail int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[ref]
	if !ok {
		return "", fmt.Errorf("container %s: %w", ref, sentinel.ErrNotFound)
	}
	logs := c.logs
	if tail > 0 && tail < len(logs) {
		logs = logs[len(logs)-tail:]
	}
	return strings.Join(logs, "\n"), nil
}

func (b *Backend) Stop(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.containers[ref]
	if !ok {
		return fmt.Errorf("container %s: %w", ref, sentinel.ErrNotFound)
	}
	c.status = "stopped"
	return nil
}
