package domain

import "time"

// EligibilityResult 是单个促销的资格判定结果。
type EligibilityResult struct {
	Eligible bool    `json:"eligible"`
	Reason   string  `json:"reason,omitempty"`
	Score    float64 `json:"score"`
}

// PromotionResult 是一个可用促销在本单上的计算结果，作为冲突消解的输入。
type PromotionResult struct {
	PromotionID      string       `json:"promotionId"`
	Code             string       `json:"code,omitempty"`
	DiscountAmount   float64      `json:"discountAmount"`
	DiscountType     DiscountType `json:"discountType"`
	AppliedItems     []string     `json:"appliedItems"`
	EligibilityScore float64      `json:"eligibilityScore"`
	ConflictReason   string       `json:"conflictReason,omitempty"`
}

// ConflictType 冲突规则的类型。
type ConflictType string

const (
	ConflictMutuallyExclusive ConflictType = "MUTUALLY_EXCLUSIVE"
	ConflictPriorityBased     ConflictType = "PRIORITY_BASED"
	ConflictHighestDiscount   ConflictType = "HIGHEST_DISCOUNT"
	ConflictCustomerChoice    ConflictType = "CUSTOMER_CHOICE"
	ConflictRuleBased         ConflictType = "RULE_BASED"
)

// ConflictRule 声明一组促销之间如何互斥或取舍。
type ConflictRule struct {
	ID                 string       `json:"id"`
	ConflictType       ConflictType `json:"conflictType"`
	ResolutionStrategy string       `json:"resolutionStrategy"`
	PromotionIDs       []string     `json:"promotionIds"`
	// ResolutionRules 仅对 RULE_BASED 生效，是一条 CEL 表达式。
	ResolutionRules string `json:"resolutionRules,omitempty"`
}

// Governs 判断这条规则是否同时覆盖 a 和 b。
func (r *ConflictRule) Governs(a, b string) bool {
	var hasA, hasB bool
	for _, id := range r.PromotionIDs {
		if id == a {
			hasA = true
		}
		if id == b {
			hasB = true
		}
	}
	return hasA && hasB
}

// RejectedPromotion 被冲突消解淘汰的促销及原因。
type RejectedPromotion struct {
	PromotionID string `json:"promotionId"`
	Reason      string `json:"reason"`
}

// ConflictResolutionResult 冲突消解的最终输出。
type ConflictResolutionResult struct {
	SelectedPromotions []string            `json:"selectedPromotions"`
	RejectedPromotions []RejectedPromotion `json:"rejectedPromotions"`
	TotalDiscount      float64             `json:"totalDiscount"`
	ResolutionStrategy string              `json:"resolutionStrategy"`
}

// ValidationResult 是促销配置的结构校验结果。
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// UsageRecord 一次促销使用记录，用于报表统计。
type UsageRecord struct {
	PromotionID    string    `json:"promotionId"`
	CustomerID     string    `json:"customerId,omitempty"`
	OrderID        string    `json:"orderId,omitempty"`
	OrderAmount    float64   `json:"orderAmount"`
	DiscountAmount float64   `json:"discountAmount"`
	UsedAt         time.Time `json:"usedAt"`
}

// PromotionMetrics 促销效果的汇总指标，只用于报表，不参与定价。
type PromotionMetrics struct {
	TotalUsage      int     `json:"totalUsage"`
	TotalDiscount   float64 `json:"totalDiscount"`
	AverageDiscount float64 `json:"averageDiscount"`
	ConversionRate  float64 `json:"conversionRate"`
	RevenueImpact   float64 `json:"revenueImpact"`
}

// DecisionEvent 是一次评估结束后对外发布的决策事件。
type DecisionEvent struct {
	DecisionID  string                   `json:"decisionId"`
	CustomerID  string                   `json:"customerId,omitempty"`
	OrderAmount float64                  `json:"orderAmount"`
	Results     []PromotionResult        `json:"results"`
	Resolution  ConflictResolutionResult `json:"resolution"`
	Ineligible  map[string]string        `json:"ineligible,omitempty"`
	EvaluatedAt time.Time                `json:"evaluatedAt"`
	TraceID     string                   `json:"traceId,omitempty"`
}
