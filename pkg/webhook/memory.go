package webhook

import (
	"context"
	"sync"
	"time"
)

// MemoryEventStore is an in-memory EventStore for tests and local
// development.
type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string]*Event
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string]*Event)}
}

func (s *MemoryEventStore) Insert(_ context.Context, evt *Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[evt.EventID]; ok {
		return false, nil
	}
	cp := *evt
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.events[evt.EventID] = &cp
	return true, nil
}

func (s *MemoryEventStore) MarkProcessed(_ context.Context, eventID string, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	now := time.Now().UTC()
	evt.Processed = true
	evt.ProcessedAt = &now
	evt.ErrorMessage = errMsg
	return nil
}

func (s *MemoryEventStore) RecordFailure(_ context.Context, eventID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	evt.ErrorMessage = &errMsg
	evt.RetryCount++
	return nil
}

func (s *MemoryEventStore) Get(_ context.Context, eventID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *evt
	return &cp, nil
}
