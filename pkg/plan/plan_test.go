package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/billingcore/pkg/plan"
)

func TestType(t *testing.T) {
	t.Parallel()

	t.Run("known types are valid", func(t *testing.T) {
		t.Parallel()
		assert.True(t, plan.Free.Valid())
		assert.True(t, plan.ProMonthly.Valid())
		assert.True(t, plan.ProYearly.Valid())
		assert.False(t, plan.Type("enterprise").Valid())
		assert.False(t, plan.Type("").Valid())
	})

	t.Run("paid tiers", func(t *testing.T) {
		t.Parallel()
		assert.False(t, plan.Free.IsPaid())
		assert.True(t, plan.ProMonthly.IsPaid())
		assert.True(t, plan.ProYearly.IsPaid())
	})
}

func TestPlan_Limit(t *testing.T) {
	t.Parallel()

	p := plan.Plan{
		Type:   plan.Free,
		Quotas: map[plan.Quota]int64{plan.QuotaIdeas: 3},
	}

	t.Run("configured quota", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, int64(3), p.Limit(plan.QuotaIdeas))
	})

	t.Run("unconfigured quota fails closed", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, int64(0), p.Limit(plan.QuotaContent))
		assert.Equal(t, int64(0), p.Limit(plan.Quota("bogus")))
	})
}

func TestCatalog_Validate(t *testing.T) {
	t.Parallel()

	t.Run("default catalog is valid", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, plan.DefaultCatalog().Validate())
	})

	t.Run("missing free plan", func(t *testing.T) {
		t.Parallel()
		c := plan.DefaultCatalog()
		delete(c, plan.Free)
		assert.ErrorIs(t, c.Validate(), plan.ErrInvalidCatalog)
	})

	t.Run("key and type mismatch", func(t *testing.T) {
		t.Parallel()
		c := plan.DefaultCatalog()
		p := c[plan.ProMonthly]
		p.Type = plan.ProYearly
		c[plan.ProMonthly] = p
		assert.ErrorIs(t, c.Validate(), plan.ErrInvalidCatalog)
	})

	t.Run("paid plan without provider price id", func(t *testing.T) {
		t.Parallel()
		c := plan.DefaultCatalog()
		p := c[plan.ProYearly]
		p.ProviderPriceID = ""
		c[plan.ProYearly] = p
		assert.ErrorIs(t, c.Validate(), plan.ErrInvalidCatalog)
	})

	t.Run("quota below unlimited sentinel", func(t *testing.T) {
		t.Parallel()
		c := plan.DefaultCatalog()
		p := c[plan.Free]
		p.Quotas[plan.QuotaIdeas] = -2
		c[plan.Free] = p
		assert.ErrorIs(t, c.Validate(), plan.ErrInvalidCatalog)
	})
}

func TestCatalog_Get(t *testing.T) {
	t.Parallel()

	c := plan.DefaultCatalog()

	t.Run("existing plan", func(t *testing.T) {
		t.Parallel()
		p, err := c.Get(plan.ProMonthly)
		require.NoError(t, err)
		assert.Equal(t, int64(2900), p.Price.Amount)
		assert.Equal(t, "USD", p.Price.Currency)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		_, err := c.Get(plan.Type("enterprise"))
		assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	})

	t.Run("must get panics on missing plan", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			c.MustGet(plan.Type("enterprise"))
		})
	})
}
