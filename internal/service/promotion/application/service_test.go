package application

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/engine"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	promotions []*domain.Promotion
	rules      []domain.ConflictRule
	listErr    error
	rulesErr   error
}

func (f *fakeCatalog) ListActivePromotions(_ context.Context, at time.Time) ([]*domain.Promotion, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.promotions, nil
}

func (f *fakeCatalog) FindByID(_ context.Context, id string) (*domain.Promotion, error) {
	for _, p := range f.promotions {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrPromotionNotFound
}

func (f *fakeCatalog) ListConflictRules(context.Context) ([]domain.ConflictRule, error) {
	return f.rules, f.rulesErr
}

type fakeUsage struct {
	counts map[string]int
	err    error
	asked  []string
}

func (f *fakeUsage) CustomerUsage(_ context.Context, _ string, ids []string) (map[string]int, error) {
	f.asked = append(f.asked, ids...)
	if f.err != nil {
		return nil, f.err
	}
	return f.counts, nil
}

type fakeHistory struct {
	records []domain.UsageRecord
	err     error
}

func (f *fakeHistory) ListUsage(context.Context, string, time.Time, time.Time) ([]domain.UsageRecord, error) {
	return f.records, f.err
}

type fakePublisher struct {
	events []*domain.DecisionEvent
	err    error
}

func (f *fakePublisher) PublishDecision(_ context.Context, e *domain.DecisionEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

type fixture struct {
	svc       *PromotionService
	catalog   *fakeCatalog
	usage     *fakeUsage
	history   *fakeHistory
	publisher *fakePublisher
	metrics   *Metrics
}

func newFixture(promotions []*domain.Promotion, rules []domain.ConflictRule) *fixture {
	f := &fixture{
		catalog:   &fakeCatalog{promotions: promotions, rules: rules},
		usage:     &fakeUsage{counts: map[string]int{}},
		history:   &fakeHistory{},
		publisher: &fakePublisher{},
		metrics:   NewMetrics(prometheus.NewRegistry()),
	}
	eng := engine.New(engine.WithClock(func() time.Time { return now }))
	f.svc = NewPromotionService(f.catalog, f.catalog, f.usage, f.history, f.publisher, eng, noop.NewTracerProvider().Tracer("test"), f.metrics)
	f.svc.now = func() time.Time { return now }
	return f
}

func promotion(id string, typ domain.DiscountType, value float64) *domain.Promotion {
	return &domain.Promotion{
		ID:            id,
		Name:          id,
		Status:        domain.StatusActive,
		DiscountType:  typ,
		DiscountValue: value,
		TargetType:    domain.TargetProduct,
		TargetIDs:     []string{"sku-1"},
		StartDate:     now.Add(-time.Hour),
	}
}

func orderRequest() *EvaluateRequest {
	return &EvaluateRequest{
		RequestID: "req-1",
		OrderID:   "order-1",
		Context: domain.EligibilityContext{
			CustomerID:  "cust-1",
			OrderAmount: 600,
			OrderItems: []domain.OrderItem{
				{ProductID: "sku-1", Quantity: 2, Price: 200, TotalPrice: 400},
				{ProductID: "sku-2", Quantity: 1, Price: 200, TotalPrice: 200},
			},
			OrderDate: now,
		},
	}
}

func TestEvaluatePromotionsResolvesExclusiveOffers(t *testing.T) {
	f := newFixture(
		[]*domain.Promotion{
			promotion("P2", domain.DiscountTypeFixedAmount, 15),
			promotion("P1", domain.DiscountTypePercentage, 20),
		},
		[]domain.ConflictRule{{ID: "r1", ConflictType: domain.ConflictMutuallyExclusive, PromotionIDs: []string{"P1", "P2"}}},
	)

	resp, err := f.svc.EvaluatePromotions(context.Background(), orderRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"P1"}, resp.Resolution.SelectedPromotions)
	assert.Equal(t, 80.0, resp.Resolution.TotalDiscount)
	assert.Equal(t, 520.0, resp.FinalAmount)
	assert.NotEmpty(t, resp.DecisionID)
	assert.Empty(t, resp.Ineligible)

	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.Equal(t, []string{"sku-1"}, r.AppliedItems)
		if r.PromotionID == "P2" {
			assert.Equal(t, "Conflicts with promotion P1", r.ConflictReason)
		} else {
			assert.Empty(t, r.ConflictReason)
		}
	}

	require.Len(t, f.publisher.events, 1)
	event := f.publisher.events[0]
	assert.Equal(t, resp.DecisionID, event.DecisionID)
	assert.Equal(t, "cust-1", event.CustomerID)
	assert.Equal(t, now, event.EvaluatedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.evaluations.WithLabelValues(outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.verdicts.WithLabelValues(verdictSelected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.verdicts.WithLabelValues(verdictRejected)))
}

func TestEvaluatePromotionsReportsIneligible(t *testing.T) {
	minOrder := 1000.0
	p := promotion("BIG", domain.DiscountTypeFixedAmount, 50)
	p.MinOrderAmount = &minOrder

	f := newFixture([]*domain.Promotion{p}, nil)
	resp, err := f.svc.EvaluatePromotions(context.Background(), orderRequest())
	require.NoError(t, err)

	assert.Empty(t, resp.Resolution.SelectedPromotions)
	assert.Equal(t, map[string]string{"BIG": engine.ReasonMinOrderNotMet}, resp.Ineligible)
	assert.Equal(t, 600.0, resp.FinalAmount)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.verdicts.WithLabelValues(verdictIneligible)))
}

func TestEvaluatePromotionsTimesEachEligibilityCheck(t *testing.T) {
	minOrder := 1000.0
	big := promotion("BIG", domain.DiscountTypeFixedAmount, 50)
	big.MinOrderAmount = &minOrder

	f := newFixture([]*domain.Promotion{
		promotion("P1", domain.DiscountTypePercentage, 10),
		promotion("P2", domain.DiscountTypeFixedAmount, 15),
		big,
	}, nil)
	_, err := f.svc.EvaluatePromotions(context.Background(), orderRequest())
	require.NoError(t, err)

	var m dto.Metric
	require.NoError(t, f.metrics.ruleEvaluation.Write(&m))
	assert.Equal(t, uint64(3), m.GetHistogram().GetSampleCount())
}

func TestEvaluatePromotionsFiltersCandidates(t *testing.T) {
	limit := 1

	applied := promotion("APPLIED", domain.DiscountTypeFixedAmount, 5)
	applied.Stackable = true
	applied.StackableWith = []string{"STACKS"}

	stacks := promotion("STACKS", domain.DiscountTypeFixedAmount, 10)
	stacks.Stackable = true

	lonely := promotion("LONELY", domain.DiscountTypeFixedAmount, 10)

	coded := promotion("CODED", domain.DiscountTypeFixedAmount, 10)
	coded.Code = "SUMMER26"
	coded.Stackable = true
	coded.StackableWith = []string{"APPLIED"}

	capped := promotion("CAPPED", domain.DiscountTypeFixedAmount, 10)
	capped.Stackable = true
	capped.StackableWith = []string{"APPLIED"}
	capped.UsagePerCustomer = &limit

	f := newFixture([]*domain.Promotion{applied, stacks, lonely, coded, capped}, nil)
	f.usage.counts = map[string]int{"CAPPED": 1}

	req := orderRequest()
	req.Context.AppliedPromotions = []string{"APPLIED"}

	resp, err := f.svc.EvaluatePromotions(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"STACKS"}, resp.Resolution.SelectedPromotions)
	assert.Equal(t, map[string]string{
		"LONELY": "Cannot be combined with applied promotion APPLIED",
		"CAPPED": ReasonCustomerUsageReached,
	}, resp.Ineligible)
	assert.Equal(t, []string{"CAPPED"}, f.usage.asked)

	req.Codes = []string{"SUMMER26"}
	resp, err = f.svc.EvaluatePromotions(context.Background(), req)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"STACKS", "CODED"}, resp.Resolution.SelectedPromotions)
}

func TestEvaluatePromotionsUsageUnavailable(t *testing.T) {
	limit := 3
	capped := promotion("CAPPED", domain.DiscountTypeFixedAmount, 10)
	capped.UsagePerCustomer = &limit
	open := promotion("OPEN", domain.DiscountTypeFixedAmount, 10)

	f := newFixture([]*domain.Promotion{capped, open}, nil)
	f.usage.err = errors.New("redis timeout")

	resp, err := f.svc.EvaluatePromotions(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"OPEN"}, resp.Resolution.SelectedPromotions)
	assert.Equal(t, ReasonCustomerUsageUnknown, resp.Ineligible["CAPPED"])
}

func TestEvaluatePromotionsAnonymousSkipsUsage(t *testing.T) {
	limit := 1
	capped := promotion("CAPPED", domain.DiscountTypeFixedAmount, 10)
	capped.UsagePerCustomer = &limit

	f := newFixture([]*domain.Promotion{capped}, nil)
	req := orderRequest()
	req.Context.CustomerID = ""

	resp, err := f.svc.EvaluatePromotions(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"CAPPED"}, resp.Resolution.SelectedPromotions)
	assert.Empty(t, f.usage.asked)
}

func TestEvaluatePromotionsCatalogFailure(t *testing.T) {
	f := newFixture(nil, nil)
	f.catalog.rulesErr = errors.New("connection refused")

	resp, err := f.svc.EvaluatePromotions(context.Background(), orderRequest())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.evaluations.WithLabelValues(outcomeCatalogError)))
}

func TestEvaluatePromotionsRejectsInvalidRequest(t *testing.T) {
	f := newFixture(nil, nil)

	_, err := f.svc.EvaluatePromotions(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	req := orderRequest()
	req.Context.OrderAmount = -1
	_, err = f.svc.EvaluatePromotions(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.evaluations.WithLabelValues(outcomeInvalid)))
}

func TestEvaluatePromotionsRejectsNonFiniteAmounts(t *testing.T) {
	f := newFixture([]*domain.Promotion{promotion("P1", domain.DiscountTypePercentage, 10)}, nil)

	mutate := map[string]func(*EvaluateRequest){
		"order +inf": func(r *EvaluateRequest) { r.Context.OrderAmount = math.Inf(1) },
		"order -inf": func(r *EvaluateRequest) { r.Context.OrderAmount = math.Inf(-1) },
		"order nan":  func(r *EvaluateRequest) { r.Context.OrderAmount = math.NaN() },
		"item total": func(r *EvaluateRequest) { r.Context.OrderItems[0].TotalPrice = math.Inf(1) },
		"item price": func(r *EvaluateRequest) { r.Context.OrderItems[1].Price = math.NaN() },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			req := orderRequest()
			fn(req)
			assert.NotPanics(t, func() {
				resp, err := f.svc.EvaluatePromotions(context.Background(), req)
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
				assert.Nil(t, resp)
			})
		})
	}
	assert.Equal(t, float64(len(mutate)), testutil.ToFloat64(f.metrics.evaluations.WithLabelValues(outcomeInvalid)))
	assert.Empty(t, f.publisher.events)
}

func TestEvaluatePromotionsSurvivesPublishFailure(t *testing.T) {
	f := newFixture([]*domain.Promotion{promotion("P1", domain.DiscountTypePercentage, 10)}, nil)
	f.publisher.err = errors.New("kafka down")

	resp, err := f.svc.EvaluatePromotions(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, resp.Resolution.SelectedPromotions)
	assert.Equal(t, 40.0, resp.Resolution.TotalDiscount)
}

func TestEvaluatePromotionsWithoutOptionalPorts(t *testing.T) {
	eng := engine.New(engine.WithClock(func() time.Time { return now }))
	catalog := &fakeCatalog{promotions: []*domain.Promotion{promotion("P1", domain.DiscountTypeFixedAmount, 25)}}
	svc := NewPromotionService(catalog, catalog, nil, nil, nil, eng, noop.NewTracerProvider().Tracer("test"), nil)

	resp, err := svc.EvaluatePromotions(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.Equal(t, 25.0, resp.Resolution.TotalDiscount)
}

func TestValidatePromotion(t *testing.T) {
	bad := promotion("BAD", domain.DiscountTypePercentage, 120)
	f := newFixture([]*domain.Promotion{promotion("OK", domain.DiscountTypePercentage, 20), bad}, nil)

	res, err := f.svc.ValidatePromotion(context.Background(), "OK")
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	res, err = f.svc.ValidatePromotion(context.Background(), "BAD")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "Percentage discount cannot exceed 100%")

	_, err = f.svc.ValidatePromotion(context.Background(), "MISSING")
	assert.ErrorIs(t, err, domain.ErrPromotionNotFound)
}

func TestGenerateCode(t *testing.T) {
	f := newFixture(nil, nil)

	code, err := f.svc.GenerateCode(context.Background(), &GenerateCodeRequest{Kind: CodeKindCoupon})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, engine.DefaultCouponPrefix))

	code, err = f.svc.GenerateCode(context.Background(), &GenerateCodeRequest{Kind: CodeKindPromotion, Prefix: "VIP"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "VIP"))

	_, err = f.svc.GenerateCode(context.Background(), &GenerateCodeRequest{Kind: "VOUCHER"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestPromotionMetrics(t *testing.T) {
	f := newFixture(nil, nil)
	f.history.records = []domain.UsageRecord{
		{PromotionID: "P1", OrderID: "o-1", OrderAmount: 100, DiscountAmount: 10},
		{PromotionID: "P1", OrderAmount: 50, DiscountAmount: 5},
	}

	m, err := f.svc.PromotionMetrics(context.Background(), "P1", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalUsage)
	assert.Equal(t, 15.0, m.TotalDiscount)
	assert.Equal(t, 7.5, m.AverageDiscount)
	assert.Equal(t, 50.0, m.ConversionRate)
	assert.Equal(t, 135.0, m.RevenueImpact)

	f.history.err = errors.New("db down")
	_, err = f.svc.PromotionMetrics(context.Background(), "P1", now.Add(-24*time.Hour), now)
	assert.Error(t, err)
}
