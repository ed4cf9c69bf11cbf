// Package history keeps the per-subject, time-ordered operation audit trail.
// Every gateway result is appended regardless of outcome.
package history

import (
	"context"
	"sync"

	"bastion/internal/gateway/models"
)

// Entry pairs an operation request with its immutable result.
type Entry struct {
	SubjectID string
	Request   models.OperationRequest
	Result    models.OperationResult
}

// InMemoryStore stores operation history in memory, ordered by append time.
type InMemoryStore struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string][]Entry
}

// Option configures the store.
type Option func(*InMemoryStore)

// WithMaxEntriesPerSubject bounds the history kept per subject; the oldest
// entries are dropped first. Zero means unbounded.
func WithMaxEntriesPerSubject(max int) Option {
	return func(s *InMemoryStore) {
		if max > 0 {
			s.maxEntries = max
		}
	}
}

// New constructs an empty in-memory history store.
func New(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{entries: make(map[string][]Entry)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records an entry for the subject.
func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.entries[entry.SubjectID], entry)
	if s.maxEntries > 0 && len(list) > s.maxEntries {
		list = list[len(list)-s.maxEntries:]
	}
	s.entries[entry.SubjectID] = list
	return nil
}

// ListBySubject returns a copy of the subject's history in append order.
func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries[subjectID]...), nil
}
