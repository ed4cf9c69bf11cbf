// Package cleanupmgr runs registered teardown tasks in descending priority
// order on explicit invocation or process shutdown, so resources are
// reclaimed even when callers never stop them explicitly.
package cleanupmgr

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Task is a named teardown unit. Higher priority runs earlier.
type Task struct {
	ID       string
	Name     string
	Priority int
	Cleanup  func(ctx context.Context) error
}

// Manager holds registered cleanup tasks.
type Manager struct {
	mu     sync.Mutex
	tasks  map[string]Task
	logger *slog.Logger
}

// New constructs an empty manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{tasks: make(map[string]Task), logger: logger}
}

// Register adds or replaces a task by ID.
func (m *Manager) Register(task Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
}

// Deregister removes a task, typically after the resource was torn down
// through the normal path. Removing an absent task is not an error.
func (m *Manager) Deregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
}

// Pending returns the number of registered tasks.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunAll executes every registered task in descending priority order. Each
// task's failure is logged and swallowed; one failing task never aborts the
// rest. Executed tasks are removed, so RunAll is safe to call more than once.
func (m *Manager) RunAll(ctx context.Context) {
	m.mu.Lock()
	tasks := make([]Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		tasks = append(tasks, task)
	}
	m.tasks = make(map[string]Task)
	m.mu.Unlock()

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority > tasks[j].Priority })

	for _, task := range tasks {
		if task.Cleanup == nil {
			continue
		}
		if err := task.Cleanup(ctx); err != nil {
			m.logger.ErrorContext(ctx, "cleanup task failed",
				"task_id", task.ID,
				"task_name", task.Name,
				"error", err,
			)
		} else {
			m.logger.InfoContext(ctx, "cleanup task completed",
				"task_id", task.ID,
				"task_name", task.Name,
			)
		}
	}
}
