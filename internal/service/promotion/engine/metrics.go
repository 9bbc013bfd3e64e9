package engine

import (
	"github.com/shopspring/decimal"

	"nexus-promotion/internal/service/promotion/domain"
)

// CalculatePromotionMetrics 汇总一组使用记录。
//
// ConversionRate 是带订单号的记录占比（百分数），RevenueImpact 是订单总额减去优惠总额。
// 没有记录时全部为 0，金额不是有限数的记录按 0 计入。
func CalculatePromotionMetrics(history []domain.UsageRecord) domain.PromotionMetrics {
	if len(history) == 0 {
		return domain.PromotionMetrics{}
	}

	discount := decimal.Zero
	revenue := decimal.Zero
	converted := 0
	for _, rec := range history {
		if finite(rec.DiscountAmount) {
			discount = discount.Add(decimal.NewFromFloat(rec.DiscountAmount))
		}
		if finite(rec.OrderAmount) {
			revenue = revenue.Add(decimal.NewFromFloat(rec.OrderAmount))
		}
		if rec.OrderID != "" {
			converted++
		}
	}

	n := decimal.NewFromInt(int64(len(history)))
	return domain.PromotionMetrics{
		TotalUsage:      len(history),
		TotalDiscount:   discount.Round(2).InexactFloat64(),
		AverageDiscount: discount.Div(n).Round(2).InexactFloat64(),
		ConversionRate:  decimal.NewFromInt(int64(converted)).Mul(hundred).Div(n).Round(2).InexactFloat64(),
		RevenueImpact:   revenue.Sub(discount).Round(2).InexactFloat64(),
	}
}
