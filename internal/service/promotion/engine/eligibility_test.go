package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/rule"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(opts ...Option) *Engine {
	return New(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func ptr[T any](v T) *T { return &v }

func basePromotion() *domain.Promotion {
	return &domain.Promotion{
		ID:            "promo-1",
		Name:          "Summer sale",
		Status:        domain.StatusActive,
		DiscountType:  domain.DiscountTypePercentage,
		DiscountValue: 10,
		TargetType:    domain.TargetAll,
		StartDate:     fixedNow.Add(-24 * time.Hour),
		EndDate:       ptr(fixedNow.Add(24 * time.Hour)),
	}
}

func baseContext() *domain.EligibilityContext {
	return &domain.EligibilityContext{
		CustomerID:      "cust-1",
		CustomerSegment: "GOLD",
		OrderAmount:     350,
		OrderItems: []domain.OrderItem{
			{ProductID: "sku-1", CategoryID: "shoes", BrandID: "acme", SellerID: "s-1", Quantity: 1, Price: 200, TotalPrice: 200},
			{ProductID: "sku-2", CategoryID: "socks", BrandID: "acme", SellerID: "s-2", Quantity: 3, Price: 50, TotalPrice: 150},
		},
		OrderDate: fixedNow,
	}
}

func TestNonActivePromotionNeverEligible(t *testing.T) {
	e := newTestEngine()
	for _, status := range []domain.PromotionStatus{
		domain.StatusInactive, domain.StatusDraft, domain.StatusPaused,
		domain.StatusExpired, domain.StatusArchived, "",
	} {
		p := basePromotion()
		p.Status = status
		res := e.IsPromotionEligible(p, baseContext())
		assert.False(t, res.Eligible, status)
		assert.Equal(t, ReasonNotActive, res.Reason, status)
	}
}

func TestEligibilityGates(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *domain.Promotion, c *domain.EligibilityContext)
		reason string
	}{
		{
			name:   "not started",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) { p.StartDate = fixedNow.Add(time.Minute) },
			reason: ReasonNotStarted,
		},
		{
			name:   "expired",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) { p.EndDate = ptr(fixedNow.Add(-time.Second)) },
			reason: ReasonExpired,
		},
		{
			name: "usage limit reached",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.UsageLimit = ptr(5)
				p.UsageCount = 5
			},
			reason: ReasonUsageLimitReached,
		},
		{
			name:   "minimum order",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) { p.MinOrderAmount = ptr(350.01) },
			reason: ReasonMinOrderNotMet,
		},
		{
			name: "customer required",
			mutate: func(p *domain.Promotion, c *domain.EligibilityContext) {
				p.TargetType = domain.TargetCustomer
				p.TargetIDs = []string{"cust-1"}
				c.CustomerID = ""
			},
			reason: ReasonCustomerRequired,
		},
		{
			name: "customer not targeted",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.TargetType = domain.TargetCustomer
				p.TargetIDs = []string{"cust-2"}
			},
			reason: ReasonCustomerNotTargeted,
		},
		{
			name: "no product",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.TargetType = domain.TargetProduct
				p.TargetIDs = []string{"sku-9"}
			},
			reason: ReasonNoEligibleProducts,
		},
		{
			name: "no category",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.TargetType = domain.TargetCategory
				p.TargetIDs = []string{"hats"}
			},
			reason: ReasonNoEligibleCategory,
		},
		{
			name: "no brand",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.TargetType = domain.TargetBrand
				p.TargetIDs = []string{"globex"}
			},
			reason: ReasonNoEligibleBrand,
		},
		{
			name: "no seller",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.TargetType = domain.TargetSeller
				p.TargetIDs = []string{"s-9"}
			},
			reason: ReasonNoEligibleSeller,
		},
		{
			name: "rules not satisfied",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.EligibilityRules = rule.MustParse(`{"==":[{"var":"customer.segment"},"PLATINUM"]}`)
			},
			reason: ReasonRulesNotSatisfied,
		},
		{
			name: "rule runtime error fails closed",
			mutate: func(p *domain.Promotion, _ *domain.EligibilityContext) {
				p.EligibilityRules = rule.MustParse(`{">":[{"/":[{"var":"order.amount"},0]},1]}`)
			},
			reason: ReasonRulesNotSatisfied,
		},
	}

	e := newTestEngine()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, c := basePromotion(), baseContext()
			tc.mutate(p, c)
			res := e.IsPromotionEligible(p, c)
			assert.False(t, res.Eligible)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Zero(t, res.Score)
		})
	}
}

func TestEligibilityGateOrder(t *testing.T) {
	e := newTestEngine()
	p, c := basePromotion(), baseContext()
	p.StartDate = fixedNow.Add(time.Hour)
	p.MinOrderAmount = ptr(10000.0)
	p.TargetType = domain.TargetCustomer
	c.CustomerID = ""

	assert.Equal(t, ReasonNotStarted, e.IsPromotionEligible(p, c).Reason)
}

func TestEligibleBoundaries(t *testing.T) {
	e := newTestEngine()

	p := basePromotion()
	p.StartDate = fixedNow
	p.EndDate = ptr(fixedNow)
	p.MinOrderAmount = ptr(350.0)
	p.UsageLimit = ptr(5)
	p.UsageCount = 4
	assert.True(t, e.IsPromotionEligible(p, baseContext()).Eligible)

	open := basePromotion()
	open.EndDate = nil
	assert.True(t, e.IsPromotionEligible(open, baseContext()).Eligible)
}

func TestEligibleTargets(t *testing.T) {
	e := newTestEngine()
	cases := map[domain.TargetType][]string{
		domain.TargetCustomer: {"cust-1"},
		domain.TargetProduct:  {"sku-2"},
		domain.TargetCategory: {"shoes"},
		domain.TargetBrand:    {"acme"},
		domain.TargetSeller:   {"s-2"},
	}
	for target, ids := range cases {
		p := basePromotion()
		p.TargetType = target
		p.TargetIDs = ids
		assert.True(t, e.IsPromotionEligible(p, baseContext()).Eligible, target)
	}
}

func TestUnknownRuleNodeIsPermissive(t *testing.T) {
	e := newTestEngine()
	p := basePromotion()
	p.EligibilityRules = rule.MustParse(`{"and":[{"regex":["x","y"]},{">=":[{"var":"order.amount"},100]}]}`)

	assert.True(t, e.IsPromotionEligible(p, baseContext()).Eligible)
}

func TestNegatedRuntimeErrorKeepsPromotionEligible(t *testing.T) {
	e := newTestEngine()
	p := basePromotion()
	p.EligibilityRules = rule.MustParse(`{"==":[{"/":[{"var":"order.amount"},0]},1]}`)
	assert.False(t, e.IsPromotionEligible(p, baseContext()).Eligible)

	p.EligibilityRules = rule.MustParse(`{"not":{"==":[{"/":[{"var":"order.amount"},0]},1]}}`)
	assert.True(t, e.IsPromotionEligible(p, baseContext()).Eligible)
}

func TestEligibilityScore(t *testing.T) {
	e := newTestEngine()

	p := basePromotion()
	p.Priority = 2
	p.DiscountValue = 15
	// 200 + 150 + floor(350/100) + 2*5
	assert.Equal(t, 363.0, e.IsPromotionEligible(p, baseContext()).Score)

	p.DiscountType = domain.DiscountTypeFixedAmount
	p.DiscountValue = 25
	assert.Equal(t, 238.0, e.IsPromotionEligible(p, baseContext()).Score)

	p.DiscountType = domain.DiscountTypeFreeShipping
	assert.Equal(t, 213.0, e.IsPromotionEligible(p, baseContext()).Score)

	p.Priority = -10
	res := e.IsPromotionEligible(p, baseContext())
	require.True(t, res.Eligible)
	assert.Zero(t, res.Score)
}

func TestApplicableItems(t *testing.T) {
	e := newTestEngine()
	c := baseContext()
	c.OrderItems = append(c.OrderItems, domain.OrderItem{ProductID: "sku-1", CategoryID: "shoes", TotalPrice: 80})

	p := basePromotion()
	assert.Equal(t, []string{"sku-1", "sku-2"}, e.ApplicableItems(p, c))

	p.TargetType = domain.TargetCategory
	p.TargetIDs = []string{"socks"}
	assert.Equal(t, []string{"sku-2"}, e.ApplicableItems(p, c))

	p.TargetType = domain.TargetSeller
	p.TargetIDs = []string{"s-404"}
	assert.Empty(t, e.ApplicableItems(p, c))
}
