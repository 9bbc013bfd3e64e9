package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/engine"
	"nexus-promotion/internal/tracing"
)

// 评估前置过滤产生的不可用原因
const (
	ReasonNotStackable         = "Cannot be combined with applied promotion %s"
	ReasonCustomerUsageReached = "Customer usage limit reached"
	ReasonCustomerUsageUnknown = "Customer usage unavailable"
)

// PromotionService 定义了促销服务提供的所有业务用例。
// 它负责取数与编排，真正的判定全部交给 engine。
type PromotionService struct {
	promotions domain.PromotionRepository
	conflicts  domain.ConflictRuleRepository
	usage      domain.UsageReader
	history    domain.UsageHistoryReader
	publisher  domain.DecisionPublisher
	engine     *engine.Engine
	tracer     trace.Tracer
	metrics    *Metrics
	now        func() time.Time
}

// NewPromotionService 创建一个新的促销服务实例。usage、history、publisher、metrics 可以为 nil。
func NewPromotionService(promotions domain.PromotionRepository, conflicts domain.ConflictRuleRepository, usage domain.UsageReader, history domain.UsageHistoryReader, publisher domain.DecisionPublisher, eng *engine.Engine, tracer trace.Tracer, metrics *Metrics) *PromotionService {
	return &PromotionService{
		promotions: promotions, conflicts: conflicts,
		usage: usage, history: history, publisher: publisher,
		engine: eng, tracer: tracer, metrics: metrics,
		now: time.Now,
	}
}

// EvaluatePromotions 是结算链路的核心用例：
// 取出当前有效的促销和冲突规则，过滤掉已使用、不可叠加、超出个人次数的促销，
// 逐个判定资格并计算优惠，最后做冲突消解并发布决策事件。
func (s *PromotionService) EvaluatePromotions(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.EvaluatePromotions")
	defer span.End()
	started := time.Now()

	if err := validateRequest(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.observeOutcome(outcomeInvalid, started)
		return nil, err
	}
	ec := &req.Context

	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("order.id", req.OrderID),
		attribute.String("customer.id", ec.CustomerID),
		attribute.Float64("order.amount", ec.OrderAmount),
		attribute.Int("order.items", len(ec.OrderItems)),
	)

	promotions, rules, err := s.loadCatalog(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.observeOutcome(outcomeCatalogError, started)
		logger.Ctx(ctx).Error().Err(err).Str("request_id", req.RequestID).Msg("failed to load promotion catalog")
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	ineligible := make(map[string]string)
	candidates := s.filterCandidates(ctx, req, promotions, ineligible)

	results := make([]domain.PromotionResult, 0, len(candidates))
	for _, p := range candidates {
		checked := time.Now()
		el := s.engine.IsPromotionEligible(p, ec)
		s.metrics.observeRuleEvaluation(checked)
		if !el.Eligible {
			ineligible[p.ID] = el.Reason
			continue
		}
		items := s.engine.ApplicableItems(p, ec)
		results = append(results, domain.PromotionResult{
			PromotionID:      p.ID,
			Code:             p.Code,
			DiscountAmount:   s.engine.CalculateDiscountAmount(p, ec, items),
			DiscountType:     p.DiscountType,
			AppliedItems:     items,
			EligibilityScore: el.Score,
		})
	}
	span.AddEvent("eligibility evaluated", trace.WithAttributes(
		attribute.Int("promotion.candidates", len(candidates)),
		attribute.Int("promotion.eligible", len(results)),
	))

	resolution := s.engine.ResolvePromotionConflicts(results, rules)
	annotateConflicts(results, resolution.RejectedPromotions)

	resp := &EvaluateResponse{
		DecisionID:  uuid.NewString(),
		Results:     results,
		Resolution:  resolution,
		Ineligible:  ineligible,
		FinalAmount: finalAmount(ec.OrderAmount, resolution.TotalDiscount),
	}

	span.SetAttributes(
		attribute.String("decision.id", resp.DecisionID),
		attribute.StringSlice("promotion.selected", resolution.SelectedPromotions),
		attribute.Float64("discount.total", resolution.TotalDiscount),
	)
	s.metrics.observeDecision(len(resolution.SelectedPromotions), len(resolution.RejectedPromotions), len(ineligible), resolution.TotalDiscount)
	s.metrics.observeOutcome(outcomeSuccess, started)

	logger.Ctx(ctx).Info().
		Str("request_id", req.RequestID).
		Str("decision_id", resp.DecisionID).
		Strs("selected", resolution.SelectedPromotions).
		Int("rejected", len(resolution.RejectedPromotions)).
		Int("ineligible", len(ineligible)).
		Float64("total_discount", resolution.TotalDiscount).
		Msg("promotions evaluated")

	s.publish(ctx, req, resp, span)
	return resp, nil
}

// validateRequest 拒绝订单金额为负数、NaN 或无穷，以及商品行价格不是有限数的请求。
func validateRequest(req *EvaluateRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", domain.ErrInvalidRequest)
	}
	if !validAmount(req.Context.OrderAmount) {
		return fmt.Errorf("%w: order amount must be a finite non-negative number", domain.ErrInvalidRequest)
	}
	for i, item := range req.Context.OrderItems {
		if !finiteAmount(item.TotalPrice) || !finiteAmount(item.Price) {
			return fmt.Errorf("%w: order item %d (%s) has an invalid price", domain.ErrInvalidRequest, i, item.ProductID)
		}
	}
	return nil
}

func validAmount(f float64) bool {
	return f >= 0 && finiteAmount(f)
}

func finiteAmount(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// loadCatalog 并发读取促销与冲突规则，任一失败即整体失败。
func (s *PromotionService) loadCatalog(ctx context.Context) ([]*domain.Promotion, []domain.ConflictRule, error) {
	var (
		promotions []*domain.Promotion
		rules      []domain.ConflictRule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		promotions, err = s.promotions.ListActivePromotions(gctx, s.now())
		if err != nil {
			return fmt.Errorf("list active promotions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rules, err = s.conflicts.ListConflictRules(gctx)
		if err != nil {
			return fmt.Errorf("list conflict rules: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return promotions, rules, nil
}

// filterCandidates 做引擎之外的前置过滤：
// 已用过的促销直接跳过，带促销码的促销需要用户输入对应的码，
// 不能与已用促销叠加或超出个人使用次数的促销记入 ineligible。
func (s *PromotionService) filterCandidates(ctx context.Context, req *EvaluateRequest, promotions []*domain.Promotion, ineligible map[string]string) []*domain.Promotion {
	ec := &req.Context

	applied := make([]*domain.Promotion, 0, len(ec.AppliedPromotions))
	for _, p := range promotions {
		if ec.HasAppliedPromotion(p.ID) {
			applied = append(applied, p)
		}
	}

	candidates := make([]*domain.Promotion, 0, len(promotions))
	for _, p := range promotions {
		if ec.HasAppliedPromotion(p.ID) {
			continue
		}
		if p.Code != "" && !req.hasCode(p.Code) {
			continue
		}
		if blocker := firstNonStackable(p, applied); blocker != "" {
			ineligible[p.ID] = fmt.Sprintf(ReasonNotStackable, blocker)
			continue
		}
		candidates = append(candidates, p)
	}

	return s.applyCustomerUsage(ctx, ec.CustomerID, candidates, ineligible)
}

func firstNonStackable(p *domain.Promotion, applied []*domain.Promotion) string {
	for _, a := range applied {
		if !engine.CanPromotionsStack(p, a) {
			return a.ID
		}
	}
	return ""
}

// applyCustomerUsage 剔除个人使用次数已满的促销。
// 读取失败时保守处理：有个人次数限制的促销全部不参与。
func (s *PromotionService) applyCustomerUsage(ctx context.Context, customerID string, candidates []*domain.Promotion, ineligible map[string]string) []*domain.Promotion {
	if s.usage == nil || customerID == "" {
		return candidates
	}

	limited := make([]string, 0)
	for _, p := range candidates {
		if p.UsagePerCustomer != nil {
			limited = append(limited, p.ID)
		}
	}
	if len(limited) == 0 {
		return candidates
	}

	used, err := s.usage.CustomerUsage(ctx, customerID, limited)
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("customer_id", customerID).Msg("customer usage unavailable, skipping limited promotions")
	}

	kept := candidates[:0]
	for _, p := range candidates {
		if p.UsagePerCustomer == nil {
			kept = append(kept, p)
			continue
		}
		if err != nil {
			ineligible[p.ID] = ReasonCustomerUsageUnknown
			continue
		}
		if p.CustomerUsageReached(used[p.ID]) {
			ineligible[p.ID] = ReasonCustomerUsageReached
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

func finalAmount(orderAmount, discount float64) float64 {
	amount := decimal.NewFromFloat(orderAmount).Sub(decimal.NewFromFloat(discount))
	return decimal.Max(amount, decimal.Zero).Round(2).InexactFloat64()
}

func annotateConflicts(results []domain.PromotionResult, rejected []domain.RejectedPromotion) {
	reasons := make(map[string]string, len(rejected))
	for _, r := range rejected {
		reasons[r.PromotionID] = r.Reason
	}
	for i := range results {
		results[i].ConflictReason = reasons[results[i].PromotionID]
	}
}

// publish 发布决策事件。失败只记日志，不影响结算。
func (s *PromotionService) publish(ctx context.Context, req *EvaluateRequest, resp *EvaluateResponse, span trace.Span) {
	if s.publisher == nil {
		return
	}
	event := &domain.DecisionEvent{
		DecisionID:  resp.DecisionID,
		CustomerID:  req.Context.CustomerID,
		OrderAmount: req.Context.OrderAmount,
		Results:     resp.Results,
		Resolution:  resp.Resolution,
		Ineligible:  resp.Ineligible,
		EvaluatedAt: s.now(),
		TraceID:     tracing.GetTraceIDFromContext(ctx),
	}
	if err := s.publisher.PublishDecision(ctx, event); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("decision_id", resp.DecisionID).Msg("failed to publish promotion decision")
		return
	}
	span.AddEvent("decision published")
}

// ValidatePromotion 对已存储的促销做结构校验。
func (s *PromotionService) ValidatePromotion(ctx context.Context, promotionID string) (*domain.ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.ValidatePromotion")
	defer span.End()
	span.SetAttributes(attribute.String("promotion.id", promotionID))

	p, err := s.promotions.FindByID(ctx, promotionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := engine.ValidatePromotionConfiguration(p)
	span.SetAttributes(attribute.Bool("promotion.valid", res.IsValid))
	if !res.IsValid {
		logger.Ctx(ctx).Info().Str("promotion_id", promotionID).Strs("errors", res.Errors).Msg("promotion configuration invalid")
	}
	return &res, nil
}

// GenerateCode 生成促销码或券码。唯一性由存储层的唯一索引保证。
func (s *PromotionService) GenerateCode(ctx context.Context, req *GenerateCodeRequest) (string, error) {
	_, span := s.tracer.Start(ctx, "service.GenerateCode")
	defer span.End()

	var code string
	switch req.Kind {
	case CodeKindPromotion:
		code = engine.GeneratePromotionCode(req.Prefix)
	case CodeKindCoupon:
		code = engine.GenerateCouponCode(req.Prefix)
	default:
		err := fmt.Errorf("%w: unknown code kind %q", domain.ErrInvalidRequest, req.Kind)
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.String("code.kind", string(req.Kind)))
	return code, nil
}

// PromotionMetrics 汇总某个促销在 [from, to) 内的使用效果。
func (s *PromotionService) PromotionMetrics(ctx context.Context, promotionID string, from, to time.Time) (*domain.PromotionMetrics, error) {
	ctx, span := s.tracer.Start(ctx, "service.PromotionMetrics")
	defer span.End()
	span.SetAttributes(attribute.String("promotion.id", promotionID))

	if s.history == nil {
		return nil, fmt.Errorf("usage history is not configured")
	}
	records, err := s.history.ListUsage(ctx, promotionID, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list usage for promotion %s: %w", promotionID, err)
	}

	m := engine.CalculatePromotionMetrics(records)
	span.SetAttributes(attribute.Int("usage.count", m.TotalUsage))
	return &m, nil
}
