package database

import (
	"context"
	"sync"
)

const defaultMemoryCapacity = 1024

// MemoryStore keeps the most recent events in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	events   []*Event
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

func (ms *MemoryStore) Record(_ context.Context, event *Event) error {
	if event.SessionID == "" {
		return SessionIdEmptyError
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.events = append(ms.events, event)
	if over := len(ms.events) - ms.capacity; over > 0 {
		ms.events = append([]*Event(nil), ms.events[over:]...)
	}
	return nil
}

func (ms *MemoryStore) List(_ context.Context, sessionID string) ([]*Event, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var result []*Event
	for _, e := range ms.events {
		if sessionID == "" || e.SessionID == sessionID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (ms *MemoryStore) Invoke(_ context.Context) error {
	ms.mu.Lock()
	ms.events = nil
	ms.mu.Unlock()
	return nil
}
