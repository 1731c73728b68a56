package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// MemorySubscriptionStore is an in-memory SubscriptionStore for tests and
// local development. It honors the same conditional-write contracts as the
// Postgres store so concurrency tests are meaningful.
type MemorySubscriptionStore struct {
	mu     sync.Mutex
	subs   map[string]*Subscription // keyed by external ID
	claims map[string]time.Time     // sweep leases, keyed by external ID
}

func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{
		subs:   make(map[string]*Subscription),
		claims: make(map[string]time.Time),
	}
}

func (s *MemorySubscriptionStore) GetByExternalID(_ context.Context, externalID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[externalID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemorySubscriptionStore) CurrentByUserID(_ context.Context, userID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Subscription
	for _, sub := range s.subs {
		if sub.UserID != userID {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemorySubscriptionStore) UpsertActive(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.subs[sub.ExternalID]; ok {
		// Stale replay: an activation older than the stored period end (and
		// not a plan change) must not rewind a renewal or clear a
		// cancellation flag.
		if sub.CurrentPeriodEnd.Before(existing.CurrentPeriodEnd) && sub.PlanType == existing.PlanType {
			return nil
		}
		existing.Status = StatusActive
		existing.PlanType = sub.PlanType
		existing.CurrentPeriodStart = sub.CurrentPeriodStart
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
		existing.CancelAtPeriodEnd = false
		existing.UpdatedAt = time.Now().UTC()
		return nil
	}

	cp := *sub
	s.subs[sub.ExternalID] = &cp
	return nil
}

func (s *MemorySubscriptionStore) ExtendPeriod(_ context.Context, externalID string, newEnd time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[externalID]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if !newEnd.After(sub.CurrentPeriodEnd) {
		return false, nil
	}
	sub.CurrentPeriodEnd = newEnd
	sub.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemorySubscriptionStore) MarkCancelAtPeriodEnd(_ context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[externalID]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if sub.Status != StatusActive || sub.CancelAtPeriodEnd {
		return false, nil
	}
	sub.CancelAtPeriodEnd = true
	sub.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemorySubscriptionStore) ClaimExpired(_ context.Context, now time.Time, limit int) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []Subscription
	for _, sub := range s.subs {
		if len(claimed) >= limit && limit > 0 {
			break
		}
		if sub.Status != StatusActive || !sub.CancelAtPeriodEnd || !sub.CurrentPeriodEnd.Before(now) {
			continue
		}
		// An unexpired lease means another claim is still working the row.
		if at, ok := s.claims[sub.ExternalID]; ok && at.After(now.Add(-sweepClaimLease)) {
			continue
		}
		s.claims[sub.ExternalID] = now
		claimed = append(claimed, *sub)
	}

	sort.Slice(claimed, func(i, j int) bool {
		return claimed[i].CurrentPeriodEnd.Before(claimed[j].CurrentPeriodEnd)
	})
	return claimed, nil
}

func (s *MemorySubscriptionStore) MarkExpired(_ context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[externalID]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if sub.Status != StatusActive {
		return false, nil
	}
	sub.Status = StatusCancelled
	sub.UpdatedAt = time.Now().UTC()
	delete(s.claims, externalID)
	return true, nil
}

// MemoryUserStore is an in-memory UserStore for tests.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*User)}
}

func (s *MemoryUserStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStore) SetPlan(_ context.Context, id string, planType plan.Type, subStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		u = &User{ID: id}
		s.users[id] = u
	}
	u.PlanType = planType
	u.SubscriptionStatus = subStatus
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// MemoryPaymentStore is an in-memory PaymentStore for tests.
type MemoryPaymentStore struct {
	mu       sync.Mutex
	payments map[string]*PaymentTransaction // keyed by external payment ID
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{payments: make(map[string]*PaymentTransaction)}
}

func (s *MemoryPaymentStore) Insert(_ context.Context, tx *PaymentTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Duplicate external payment ID: the uniqueness guard treats redelivery
	// as a no-op, mirroring ON CONFLICT DO NOTHING.
	if _, ok := s.payments[tx.ExternalPaymentID]; ok {
		return nil
	}
	cp := *tx
	s.payments[tx.ExternalPaymentID] = &cp
	return nil
}

func (s *MemoryPaymentStore) ListByUser(_ context.Context, userID string) ([]PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PaymentTransaction
	for _, tx := range s.payments {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
