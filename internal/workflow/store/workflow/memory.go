package workflow

import (
	"context"
	"fmt"
	"sync"

	"bastion/internal/sentinel"
	"bastion/internal/workflow/models"
)

// InMemoryStore keeps workflow records in memory. All reads return deep
// copies; mutation goes through Update so concurrent runners and API reads
// never share a record.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{workflows: make(map[string]*models.Workflow)}
}

func (s *InMemoryStore) Create(_ context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[wf.ID]; exists {
		return fmt.Errorf("workflow %s already exists", wf.ID)
	}
	s.workflows[wf.ID] = wf.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, sentinel.ErrNotFound)
	}
	return wf.Clone(), nil
}

// Update applies mutate to the stored record under the write lock and
// returns a copy of the result. If mutate errors the record is unchanged.
func (s *InMemoryStore) Update(_ context.Context, id string, mutate func(*models.Workflow) error) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, sentinel.ErrNotFound)
	}
	next := wf.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.workflows[id] = next
	return next.Clone(), nil
}

func (s *InMemoryStore) List(_ context.Context) []*models.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, wf.Clone())
	}
	return out
}
