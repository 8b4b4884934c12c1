// Package billing provides the plan catalog, promo pricing, and the
// webhook-driven subscription state machine.
package billing

import (
	"strings"

	"studypal/internal/types"
)

// PlanDetails describes one purchasable plan. Amounts are in cents.
type PlanDetails struct {
	ID          types.Plan
	Name        string
	AmountCents int64
	Currency    string
	// ProviderProductID is the product configured at the payment provider
	// for this plan.
	ProviderProductID string
}

// PlanCatalog resolves plan ids to pricing. Unknown ids resolve to nothing;
// the catalog never guesses a price.
type PlanCatalog interface {
	// Get returns the plan details for the given id, or false for an
	// unknown plan.
	Get(id types.Plan) (PlanDetails, bool)
	// Discount returns the multiplier to subtract for a promo code
	// (0.5 means 50% off) or zero for an unknown code. Codes are
	// case-insensitive.
	Discount(code string) float64
}

// planDefaults is the hardcoded catalog. Two plans only:
//
//	| Plan     | Price  | Access                      |
//	|----------|--------|-----------------------------|
//	| monthly  | $2.00  | 30 days unlimited messages  |
//	| lifetime | $10.00 | unlimited until 2099-12-31  |
var planDefaults = map[types.Plan]PlanDetails{
	types.PlanMonthly: {
		ID:                types.PlanMonthly,
		Name:              "StudyPal Monthly",
		AmountCents:       200,
		Currency:          "USD",
		ProviderProductID: "pdt_studypal_monthly",
	},
	types.PlanLifetime: {
		ID:                types.PlanLifetime,
		Name:              "StudyPal Lifetime",
		AmountCents:       1000,
		Currency:          "USD",
		ProviderProductID: "pdt_studypal_lifetime",
	},
}

// promoDiscounts maps promo codes to their discount fraction.
var promoDiscounts = map[string]float64{
	"STUDENT50": 0.50,
	"LAUNCH25":  0.25,
	"EXAMGPT":   0.30,
}

// staticPlanCatalog is the standard production PlanCatalog; no database or
// external service is required.
type staticPlanCatalog struct {
	plans  map[types.Plan]PlanDetails
	promos map[string]float64
}

// NewStaticPlanCatalog returns the hardcoded plan catalog.
func NewStaticPlanCatalog() PlanCatalog {
	// Copy the defaults so callers cannot mutate the package-level maps.
	plans := make(map[types.Plan]PlanDetails, len(planDefaults))
	for k, v := range planDefaults {
		plans[k] = v
	}
	promos := make(map[string]float64, len(promoDiscounts))
	for k, v := range promoDiscounts {
		promos[k] = v
	}
	return &staticPlanCatalog{plans: plans, promos: promos}
}

func (c *staticPlanCatalog) Get(id types.Plan) (PlanDetails, bool) {
	d, ok := c.plans[id]
	return d, ok
}

func (c *staticPlanCatalog) Discount(code string) float64 {
	return c.promos[strings.ToUpper(strings.TrimSpace(code))]
}

// DiscountedAmount applies a promo discount to a plan price, rounding down
// to whole cents.
func DiscountedAmount(amountCents int64, discount float64) int64 {
	if discount <= 0 {
		return amountCents
	}
	if discount >= 1 {
		return 0
	}
	return amountCents - int64(float64(amountCents)*discount)
}
