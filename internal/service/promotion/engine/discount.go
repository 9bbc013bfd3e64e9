package engine

import (
	"math"

	"github.com/shopspring/decimal"

	"nexus-promotion/internal/service/promotion/domain"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscountAmount 计算一个促销在指定商品上的优惠金额。
//
// 包邮、买X送Y、组合优惠由运费和组合逻辑单独处理，这里只贡献 0。
// 结果先按分取整，再依次受 MaxDiscountAmount 与可优惠商品总额封顶，
// 因此总是落在 [0, 可优惠商品总额] 之内。优惠值或封顶不是有限数时优惠为 0。
func (e *Engine) CalculateDiscountAmount(p *domain.Promotion, c *domain.EligibilityContext, applicableItemIDs []string) float64 {
	if !finite(p.DiscountValue) || (p.MaxDiscountAmount != nil && !finite(*p.MaxDiscountAmount)) {
		return 0
	}
	applicable := ApplicableAmount(c, applicableItemIDs)

	var amount decimal.Decimal
	switch p.DiscountType {
	case domain.DiscountTypePercentage:
		amount = applicable.Mul(decimal.NewFromFloat(p.DiscountValue)).Div(hundred)
	case domain.DiscountTypeFixedAmount:
		amount = decimal.NewFromFloat(p.DiscountValue)
	case domain.DiscountTypeFreeShipping, domain.DiscountTypeBuyXGetY, domain.DiscountTypeBundleDiscount:
		amount = decimal.Zero
	default:
		amount = decimal.Zero
	}
	amount = amount.Round(2)

	if p.MaxDiscountAmount != nil {
		amount = decimal.Min(amount, decimal.NewFromFloat(*p.MaxDiscountAmount))
	}
	amount = decimal.Min(amount, applicable)
	amount = decimal.Max(amount, decimal.Zero)
	return amount.InexactFloat64()
}

// ApplicableAmount 汇总 productId 在 itemIDs 中的商品行小计，负数按 0 处理，
// 小计为 NaN 或无穷的商品行不计入。
func ApplicableAmount(c *domain.EligibilityContext, itemIDs []string) decimal.Decimal {
	ids := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		ids[id] = struct{}{}
	}
	total := decimal.Zero
	for _, item := range c.OrderItems {
		if _, ok := ids[item.ProductID]; ok && finite(item.TotalPrice) {
			total = total.Add(decimal.NewFromFloat(item.TotalPrice))
		}
	}
	return decimal.Max(total, decimal.Zero)
}

// finite 判断金额能否安全地转换为 decimal。
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
