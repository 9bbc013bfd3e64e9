package engine

import (
	"math"

	"nexus-promotion/internal/service/promotion/domain"
)

// 资格判定失败时返回给调用方的原因，每道关卡一个。
const (
	ReasonNotActive           = "Promotion is not active"
	ReasonNotStarted          = "Promotion has not started yet"
	ReasonExpired             = "Promotion has expired"
	ReasonUsageLimitReached   = "Promotion usage limit reached"
	ReasonMinOrderNotMet      = "Minimum order amount not met"
	ReasonCustomerRequired    = "Customer ID required"
	ReasonCustomerNotTargeted = "Customer not eligible for this promotion"
	ReasonNoEligibleProducts  = "No eligible products in order"
	ReasonNoEligibleCategory  = "No eligible categories in order"
	ReasonNoEligibleBrand     = "No eligible brands in order"
	ReasonNoEligibleSeller    = "No eligible sellers in order"
	ReasonUnsupportedTarget   = "Unsupported target type"
	ReasonRulesNotSatisfied   = "Eligibility rules not satisfied"
)

// IsPromotionEligible 依次通过状态、时间、总次数、门槛、适用对象、适用条件六道关卡，
// 遇到第一道失败即返回。通过时给出用于冲突消解排序的分数。
func (e *Engine) IsPromotionEligible(p *domain.Promotion, c *domain.EligibilityContext) domain.EligibilityResult {
	if !p.IsActive() {
		return ineligible(ReasonNotActive)
	}

	now := e.now()
	if p.NotStartedAt(now) {
		return ineligible(ReasonNotStarted)
	}
	if p.ExpiredAt(now) {
		return ineligible(ReasonExpired)
	}

	if p.UsageLimitReached() {
		return ineligible(ReasonUsageLimitReached)
	}

	if p.MinOrderAmount != nil && c.OrderAmount < *p.MinOrderAmount {
		return ineligible(ReasonMinOrderNotMet)
	}

	if ok, reason := matchTarget(p, c); !ok {
		return ineligible(reason)
	}

	if p.EligibilityRules != nil && !e.interpreter.Evaluate(p.EligibilityRules, c) {
		return ineligible(ReasonRulesNotSatisfied)
	}

	return domain.EligibilityResult{Eligible: true, Score: eligibilityScore(p, c)}
}

func ineligible(reason string) domain.EligibilityResult {
	return domain.EligibilityResult{Eligible: false, Reason: reason}
}

func matchTarget(p *domain.Promotion, c *domain.EligibilityContext) (bool, string) {
	switch p.TargetType {
	case domain.TargetAll:
		return true, ""
	case domain.TargetCustomer:
		if c.CustomerID == "" {
			return false, ReasonCustomerRequired
		}
		if !p.Targets(c.CustomerID) {
			return false, ReasonCustomerNotTargeted
		}
		return true, ""
	case domain.TargetProduct, domain.TargetCategory, domain.TargetBrand, domain.TargetSeller:
		for _, item := range c.OrderItems {
			if p.Targets(itemField(p.TargetType, item)) {
				return true, ""
			}
		}
		return false, noMatchReason(p.TargetType)
	default:
		return false, ReasonUnsupportedTarget
	}
}

// itemField 取出商品行上与适用维度对应的字段，缺失时为空串（不参与匹配）。
func itemField(t domain.TargetType, item domain.OrderItem) string {
	switch t {
	case domain.TargetProduct:
		return item.ProductID
	case domain.TargetCategory:
		return item.CategoryID
	case domain.TargetBrand:
		return item.BrandID
	case domain.TargetSeller:
		return item.SellerID
	default:
		return ""
	}
}

func noMatchReason(t domain.TargetType) string {
	switch t {
	case domain.TargetCategory:
		return ReasonNoEligibleCategory
	case domain.TargetBrand:
		return ReasonNoEligibleBrand
	case domain.TargetSeller:
		return ReasonNoEligibleSeller
	default:
		return ReasonNoEligibleProducts
	}
}

// eligibilityScore 仅用于排序，不是金额：
// priority*100 + 类型加权 + floor(订单金额/100) + 商品行数*5。
func eligibilityScore(p *domain.Promotion, c *domain.EligibilityContext) float64 {
	score := float64(p.Priority) * 100
	switch p.DiscountType {
	case domain.DiscountTypePercentage:
		score += p.DiscountValue * 10
	case domain.DiscountTypeFixedAmount:
		score += p.DiscountValue
	}
	score += math.Floor(c.OrderAmount / 100)
	score += float64(len(c.OrderItems) * 5)
	return math.Max(score, 0)
}

// ApplicableItems 返回促销作用到的商品 ID（按订单顺序去重）。
// ALL 与 CUSTOMER 作用于全部商品，其余维度只取命中的商品行。
func (e *Engine) ApplicableItems(p *domain.Promotion, c *domain.EligibilityContext) []string {
	seen := make(map[string]struct{}, len(c.OrderItems))
	ids := make([]string, 0, len(c.OrderItems))
	for _, item := range c.OrderItems {
		switch p.TargetType {
		case domain.TargetAll, domain.TargetCustomer:
		default:
			if !p.Targets(itemField(p.TargetType, item)) {
				continue
			}
		}
		if _, dup := seen[item.ProductID]; dup {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
