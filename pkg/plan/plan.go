// Package plan defines the billing plan catalog: tiers, prices, and the
// quota limits each tier grants. The catalog is either the built-in default
// or loaded from a YAML file and validated at startup.
package plan

import "fmt"

// Type identifies a billing plan tier.
type Type string

const (
	Free       Type = "free"
	ProMonthly Type = "pro_monthly"
	ProYearly  Type = "pro_yearly"
)

// Valid reports whether the plan type is one of the known tiers.
func (t Type) Valid() bool {
	switch t {
	case Free, ProMonthly, ProYearly:
		return true
	}
	return false
}

// IsPaid reports whether the plan type requires a billing provider subscription.
func (t Type) IsPaid() bool {
	return t == ProMonthly || t == ProYearly
}

// Quota represents a countable monthly resource.
type Quota string

const (
	QuotaIdeas       Quota = "ideas"
	QuotaValidations Quota = "validations"
	QuotaContent     Quota = "content"
)

// Quotas returns every known quota type. The order is stable and matches
// the column layout of the usage_limits table.
func Quotas() []Quota {
	return []Quota{QuotaIdeas, QuotaValidations, QuotaContent}
}

const (
	// Unlimited indicates no limit for a quota (-1 chosen for SQL compatibility).
	Unlimited int64 = -1
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $29.00 USD would be Amount: 2900, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount"`
	Currency string `yaml:"currency"`
}

// Plan describes a billing tier: its price, billing interval, and monthly quotas.
type Plan struct {
	Type            Type            `yaml:"type"`
	Name            string          `yaml:"name"`
	Price           Money           `yaml:"price"`
	Quotas          map[Quota]int64 `yaml:"quotas"`
	ProviderPriceID string          `yaml:"provider_price_id"` // Billing provider's price ID (empty for free)
}

// Limit returns the monthly limit for a quota, defaulting to 0 for quotas
// the plan does not mention so unknown quotas fail closed.
func (p Plan) Limit(q Quota) int64 {
	limit, ok := p.Quotas[q]
	if !ok {
		return 0
	}
	return limit
}

// Catalog holds every configured plan keyed by plan type.
type Catalog map[Type]Plan

// Get returns the plan for a type.
// Returns ErrPlanNotFound for unknown types.
func (c Catalog) Get(t Type) (Plan, error) {
	p, ok := c[t]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// MustGet returns the plan for a type, panicking if it is missing.
// Intended for lookups of plan types already validated at startup.
func (c Catalog) MustGet(t Type) Plan {
	p, err := c.Get(t)
	if err != nil {
		panic(fmt.Sprintf("plan: %q missing from validated catalog", t))
	}
	return p
}

// Validate checks catalog consistency: the free tier must exist, map keys
// must match plan types, prices must be non-negative, and paid plans need a
// provider price ID so checkout links can be created.
func (c Catalog) Validate() error {
	if _, ok := c[Free]; !ok {
		return fmt.Errorf("%w: free plan is required", ErrInvalidCatalog)
	}

	for t, p := range c {
		if p.Type != t {
			return fmt.Errorf("%w: map key %q != plan type %q", ErrInvalidCatalog, t, p.Type)
		}
		if !t.Valid() {
			return fmt.Errorf("%w: unknown plan type %q", ErrInvalidCatalog, t)
		}
		if p.Price.Amount < 0 {
			return fmt.Errorf("%w: plan %q has negative price", ErrInvalidCatalog, t)
		}
		if t.IsPaid() && p.ProviderPriceID == "" {
			return fmt.Errorf("%w: paid plan %q has no provider price ID", ErrInvalidCatalog, t)
		}
		for q, limit := range p.Quotas {
			if limit < Unlimited {
				return fmt.Errorf("%w: plan %q quota %q has invalid limit %d", ErrInvalidCatalog, t, q, limit)
			}
		}
	}

	return nil
}
