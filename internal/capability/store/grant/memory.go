// Package grant provides the in-memory grant table. The table is an injected
// repository, never a process-wide singleton, so tests construct isolated
// instances per case.
package grant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bastion/internal/capability/models"
	"bastion/internal/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested record does not exist
// - Return nil for successful operations
type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[models.GrantKey]*models.GrantRecord
}

// New constructs an empty in-memory grant store.
func New() *InMemoryStore {
	return &InMemoryStore{grants: make(map[models.GrantKey]*models.GrantRecord)}
}

// Put stores the record, replacing any existing record for the same key.
// One live grant per key.
func (s *InMemoryStore) Put(_ context.Context, record *models.GrantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[record.Key] = record
	return nil
}

// Find returns the record for the key.
func (s *InMemoryStore) Find(_ context.Context, key models.GrantKey) (*models.GrantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.grants[key]; ok {
		return record, nil
	}
	return nil, fmt.Errorf("grant not found: %w", sentinel.ErrNotFound)
}

// Delete removes the record for the key. Deleting an absent key is not an
// error; revocation is idempotent.
func (s *InMemoryStore) Delete(_ context.Context, key models.GrantKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, key)
	return nil
}

// DeleteExpired removes all records expired as of the given time and returns
// the removed keys so the caller can run revocation hooks. The time parameter
// is injected for testability.
func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) ([]models.GrantKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []models.GrantKey
	for key, record := range s.grants {
		if record.Expired(now) {
			delete(s.grants, key)
			removed = append(removed, key)
		}
	}
	return removed, nil
}

// Count returns the number of live records.
func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants), nil
}
