package infrastructure

import (
	"fmt"
	"strings"

	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/rule"
)

// ToDomainPromotion 将数据库模型转换为领域模型。
// 适用条件不是合法 JSON 时返回错误，调用方决定跳过还是中断。
func ToDomainPromotion(model *PromotionModel) (*domain.Promotion, error) {
	if model == nil {
		return nil, nil
	}

	var rules rule.Node
	if model.EligibilityRules.Valid {
		n, err := rule.ParseString(model.EligibilityRules.String)
		if err != nil {
			return nil, fmt.Errorf("promotion %s has malformed eligibility rules: %w", model.PromotionKey, err)
		}
		rules = n
	}

	p := &domain.Promotion{
		ID:               model.PromotionKey,
		Name:             model.Name,
		Description:      model.Description,
		Code:             model.Code.String,
		Status:           domain.PromotionStatus(model.Status),
		DiscountType:     domain.DiscountType(model.DiscountType),
		DiscountValue:    model.DiscountValue,
		TargetType:       domain.TargetType(model.TargetType),
		TargetIDs:        splitList(model.TargetIDs),
		EligibilityRules: rules,
		UsageCount:       model.UsageCount,
		StartDate:        model.StartDate,
		Priority:         model.Priority,
		Stackable:        model.Stackable,
		StackableWith:    splitList(model.StackableWith),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
	if model.MaxDiscountAmount.Valid {
		p.MaxDiscountAmount = &model.MaxDiscountAmount.Float64
	}
	if model.MinOrderAmount.Valid {
		p.MinOrderAmount = &model.MinOrderAmount.Float64
	}
	if model.UsageLimit.Valid {
		v := int(model.UsageLimit.Int64)
		p.UsageLimit = &v
	}
	if model.UsagePerCustomer.Valid {
		v := int(model.UsagePerCustomer.Int64)
		p.UsagePerCustomer = &v
	}
	if model.EndDate.Valid {
		p.EndDate = &model.EndDate.Time
	}
	return p, nil
}

// ToDomainConflictRule 将冲突规则模型转换为领域模型
func ToDomainConflictRule(model *ConflictRuleModel) domain.ConflictRule {
	return domain.ConflictRule{
		ID:                 model.RuleKey,
		ConflictType:       domain.ConflictType(model.ConflictType),
		ResolutionStrategy: model.ResolutionStrategy,
		PromotionIDs:       splitList(model.PromotionIDs),
		ResolutionRules:    strings.TrimSpace(model.ResolutionRules),
	}
}

func ToDomainUsageRecord(model *PromotionUsageModel) domain.UsageRecord {
	return domain.UsageRecord{
		PromotionID:    model.PromotionKey,
		CustomerID:     model.CustomerID,
		OrderID:        model.OrderID.String,
		OrderAmount:    model.OrderAmount,
		DiscountAmount: model.DiscountAmount,
		UsedAt:         model.UsedAt,
	}
}

// splitList 将逗号分隔的字符串转换为切片，忽略空白项
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
