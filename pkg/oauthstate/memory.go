package oauthstate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a single-process Store for tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]memoryEntry
	now    func() time.Time
}

type memoryEntry struct {
	payload   Payload
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, state string, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state] = memoryEntry{payload: payload, expiresAt: s.now().Add(TTL)}
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, state string) (Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok {
		return Payload{}, ErrStateNotFound
	}
	delete(s.states, state)
	if s.now().After(entry.expiresAt) {
		return Payload{}, ErrStateNotFound
	}
	return entry.payload, nil
}
