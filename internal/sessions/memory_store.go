package sessions

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store for single instance deployments and tests
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Capacity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Capacity)}
}

// Seed sets both counters directly
func (s *MemoryStore) Seed(sessionID string, maxCapacity, confirmed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &Capacity{SessionID: sessionID, ConfirmedCount: confirmed, MaxCapacity: maxCapacity}
}

func (s *MemoryStore) GetCapacity(_ context.Context, sessionID string) (*Capacity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) IncrementConfirmed(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	if c.ConfirmedCount >= c.MaxCapacity {
		return 0, ErrSessionFull
	}
	c.ConfirmedCount++
	return c.ConfirmedCount, nil
}

func (s *MemoryStore) DecrementConfirmed(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrSessionNotFound
	}
	if c.ConfirmedCount > 0 {
		c.ConfirmedCount--
	}
	return c.ConfirmedCount, nil
}

func (s *MemoryStore) SetMaxCapacity(_ context.Context, sessionID string, maxCapacity int) (*Capacity, error) {
	if maxCapacity < 0 {
		return nil, ErrInvalidCapacity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.sessions[sessionID]
	if !ok {
		c = &Capacity{SessionID: sessionID}
		s.sessions[sessionID] = c
	}
	if c.ConfirmedCount > maxCapacity {
		return nil, ErrInvalidCapacity
	}
	c.MaxCapacity = maxCapacity
	cp := *c
	return &cp, nil
}
