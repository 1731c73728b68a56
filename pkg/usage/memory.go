package usage

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// MemoryStore is an in-memory Store for tests and local development. Guards
// match the Postgres implementation's conditional-write semantics.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*Limits
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Limits)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Limits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	cp.Used = maps.Clone(row.Used)
	cp.Limits = maps.Clone(row.Limits)
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, l *Limits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[l.UserID]; ok {
		return nil
	}
	cp := *l
	cp.Used = maps.Clone(l.Used)
	if cp.Used == nil {
		cp.Used = make(map[plan.Quota]int64)
	}
	cp.Limits = maps.Clone(l.Limits)
	s.rows[l.UserID] = &cp
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, userID string, q plan.Quota, limit int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[userID]
	if !ok {
		return false, ErrNotFound
	}
	if limit != plan.Unlimited && row.Used[q] >= limit {
		return false, nil
	}
	row.Used[q]++
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) ResetIfDue(_ context.Context, userID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[userID]
	if !ok {
		return false, ErrNotFound
	}
	if row.ResetDate.After(now) {
		return false, nil
	}
	for q := range row.Used {
		row.Used[q] = 0
	}
	row.ResetDate = row.ResetDate.AddDate(0, 1, 0)
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) ApplyPlan(_ context.Context, userID string, planType plan.Type, limits map[plan.Quota]int64, resetDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[userID]
	if !ok {
		row = &Limits{UserID: userID, Used: make(map[plan.Quota]int64)}
		s.rows[userID] = row
	}
	row.PlanType = planType
	row.Limits = maps.Clone(limits)
	for q := range row.Used {
		row.Used[q] = 0
	}
	row.ResetDate = resetDate
	row.UpdatedAt = time.Now().UTC()
	return nil
}
