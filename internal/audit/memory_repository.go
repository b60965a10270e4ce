package audit

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRepository builds an in-memory event store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Append(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRepository) List(_ context.Context, filter Filter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
