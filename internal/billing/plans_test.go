package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studypal/internal/types"
)

func TestStaticPlanCatalog_Get(t *testing.T) {
	catalog := NewStaticPlanCatalog()

	monthly, ok := catalog.Get(types.PlanMonthly)
	require.True(t, ok)
	assert.Equal(t, int64(200), monthly.AmountCents)
	assert.Equal(t, "USD", monthly.Currency)

	lifetime, ok := catalog.Get(types.PlanLifetime)
	require.True(t, ok)
	assert.Equal(t, int64(1000), lifetime.AmountCents)

	_, ok = catalog.Get(types.Plan("yearly"))
	assert.False(t, ok)
}

func TestStaticPlanCatalog_Discount(t *testing.T) {
	catalog := NewStaticPlanCatalog()

	assert.Equal(t, 0.50, catalog.Discount("STUDENT50"))
	assert.Equal(t, 0.25, catalog.Discount("LAUNCH25"))
	assert.Equal(t, 0.30, catalog.Discount("EXAMGPT"))

	// Codes are case-insensitive and whitespace-tolerant.
	assert.Equal(t, 0.50, catalog.Discount("student50"))
	assert.Equal(t, 0.30, catalog.Discount("  examgpt "))

	assert.Equal(t, 0.0, catalog.Discount("BOGUS"))
	assert.Equal(t, 0.0, catalog.Discount(""))
}

func TestDiscountedAmount(t *testing.T) {
	assert.Equal(t, int64(100), DiscountedAmount(200, 0.50))
	assert.Equal(t, int64(150), DiscountedAmount(200, 0.25))
	assert.Equal(t, int64(700), DiscountedAmount(1000, 0.30))
	assert.Equal(t, int64(200), DiscountedAmount(200, 0))
	assert.Equal(t, int64(0), DiscountedAmount(200, 1.0))
}
