// internal/service/promotion/domain/promotion.go
package domain

import (
	"time"

	"nexus-promotion/internal/service/promotion/rule"
)

// DiscountType 定义了优惠的计算方式。
type DiscountType string

const (
	DiscountTypePercentage     DiscountType = "PERCENTAGE"      // 折扣
	DiscountTypeFixedAmount    DiscountType = "FIXED_AMOUNT"    // 满减/立减
	DiscountTypeFreeShipping   DiscountType = "FREE_SHIPPING"   // 包邮，由运费逻辑处理
	DiscountTypeBuyXGetY       DiscountType = "BUY_X_GET_Y"     // 买X送Y，由组合逻辑处理
	DiscountTypeBundleDiscount DiscountType = "BUNDLE_DISCOUNT" // 组合优惠，由组合逻辑处理
)

// Valid 判断是否为已知的优惠类型。
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountTypePercentage, DiscountTypeFixedAmount, DiscountTypeFreeShipping,
		DiscountTypeBuyXGetY, DiscountTypeBundleDiscount:
		return true
	default:
		return false
	}
}

// TargetType 定义了优惠的适用维度。
type TargetType string

const (
	TargetAll      TargetType = "ALL"
	TargetCustomer TargetType = "CUSTOMER"
	TargetProduct  TargetType = "PRODUCT"
	TargetCategory TargetType = "CATEGORY"
	TargetBrand    TargetType = "BRAND"
	TargetSeller   TargetType = "SELLER"
)

func (t TargetType) Valid() bool {
	switch t {
	case TargetAll, TargetCustomer, TargetProduct, TargetCategory, TargetBrand, TargetSeller:
		return true
	default:
		return false
	}
}

// PromotionStatus 促销活动的生命周期状态，只有 ACTIVE 的活动可能生效。
type PromotionStatus string

const (
	StatusActive   PromotionStatus = "ACTIVE"
	StatusInactive PromotionStatus = "INACTIVE"
	StatusDraft    PromotionStatus = "DRAFT"
	StatusPaused   PromotionStatus = "PAUSED"
	StatusExpired  PromotionStatus = "EXPIRED"
	StatusArchived PromotionStatus = "ARCHIVED"
)

// Promotion 是一条促销活动的完整定义。
// 它由外部的管理后台配置并持久化，在引擎内部只读。
type Promotion struct {
	ID          string
	Name        string
	Description string
	Code        string // 可选的促销码
	Status      PromotionStatus

	DiscountType      DiscountType
	DiscountValue     float64
	MaxDiscountAmount *float64 // 优惠封顶
	MinOrderAmount    *float64 // 订单门槛

	TargetType TargetType
	TargetIDs  []string

	// EligibilityRules 是编译后的适用条件，nil 表示没有额外条件。
	EligibilityRules rule.Node

	UsageLimit       *int
	UsagePerCustomer *int
	UsageCount       int

	StartDate time.Time
	EndDate   *time.Time

	Priority      int
	Stackable     bool
	StackableWith []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Promotion) IsActive() bool {
	return p.Status == StatusActive
}

// NotStartedAt 判断在 at 时刻活动是否尚未开始。
func (p *Promotion) NotStartedAt(at time.Time) bool {
	return at.Before(p.StartDate)
}

// ExpiredAt 判断在 at 时刻活动是否已经结束。结束时间当刻仍然有效。
func (p *Promotion) ExpiredAt(at time.Time) bool {
	return p.EndDate != nil && at.After(*p.EndDate)
}

// UsageLimitReached 只看全局次数；按用户的次数由调用方提供。
func (p *Promotion) UsageLimitReached() bool {
	return p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit
}

// CustomerUsageReached 判断某个用户已用次数是否达到 UsagePerCustomer。
func (p *Promotion) CustomerUsageReached(used int) bool {
	return p.UsagePerCustomer != nil && used >= *p.UsagePerCustomer
}

// Targets 判断 id 是否在 TargetIDs 中。
func (p *Promotion) Targets(id string) bool {
	if id == "" {
		return false
	}
	for _, t := range p.TargetIDs {
		if t == id {
			return true
		}
	}
	return false
}

// ListsStackable 判断 id 是否出现在 StackableWith 中。
func (p *Promotion) ListsStackable(id string) bool {
	for _, s := range p.StackableWith {
		if s == id {
			return true
		}
	}
	return false
}
