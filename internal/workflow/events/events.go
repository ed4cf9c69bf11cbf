// Package events provides a small in-process registry for workflow
// lifecycle notifications. Delivery is synchronous and in subscription
// order; there is no replay for late subscribers.
package events

import (
	"sort"
	"sync"
	"time"
)

type Type string

const (
	StepStarted       Type = "stepStarted"
	StepCompleted     Type = "stepCompleted"
	StepFailed        Type = "stepFailed"
	WorkflowCompleted Type = "workflowCompleted"
	WorkflowFailed    Type = "workflowFailed"
)

type Event struct {
	Type       Type
	WorkflowID string
	StepName   string
	Error      string
	Timestamp  time.Time
}

type Listener func(Event)

type Registry struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Listener
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its id for Unsubscribe.
func (r *Registry) Subscribe(fn Listener) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.subs[r.nextID] = fn
	return r.nextID
}

func (r *Registry) Unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// Publish delivers the event to every listener, oldest subscription first,
// before returning. Listeners must not block.
func (r *Registry) Publish(e Event) {
	r.mu.RLock()
	ids := make([]int, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, r.subs[id])
	}
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}
