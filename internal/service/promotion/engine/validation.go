package engine

import (
	"fmt"
	"strings"

	"nexus-promotion/internal/service/promotion/domain"
)

// ValidatePromotionConfiguration 只做结构校验，收集全部问题后一起返回，
// 不检查引用的商品、类目是否存在。
func ValidatePromotionConfiguration(p *domain.Promotion) domain.ValidationResult {
	if p == nil {
		return domain.ValidationResult{IsValid: false, Errors: []string{"Promotion is required"}}
	}

	errs := make([]string, 0)
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "Promotion name is required")
	}

	switch {
	case p.DiscountType == "":
		errs = append(errs, "Discount type is required")
	case !p.DiscountType.Valid():
		errs = append(errs, fmt.Sprintf("Unsupported discount type: %s", p.DiscountType))
	}

	if p.DiscountValue <= 0 {
		errs = append(errs, "Discount value must be greater than 0")
	}
	if p.DiscountType == domain.DiscountTypePercentage && p.DiscountValue > 100 {
		errs = append(errs, "Percentage discount cannot exceed 100%")
	}
	if p.MaxDiscountAmount != nil && *p.MaxDiscountAmount <= 0 {
		errs = append(errs, "Maximum discount amount must be greater than 0")
	}

	if p.EndDate != nil && !p.EndDate.After(p.StartDate) {
		errs = append(errs, "End date must be after start date")
	}

	if p.UsageLimit != nil && *p.UsageLimit <= 0 {
		errs = append(errs, "Usage limit must be greater than 0")
	}
	if p.UsagePerCustomer != nil && *p.UsagePerCustomer <= 0 {
		errs = append(errs, "Usage per customer must be greater than 0")
	}
	if p.MinOrderAmount != nil && *p.MinOrderAmount < 0 {
		errs = append(errs, "Minimum order amount cannot be negative")
	}

	if p.TargetType != "" && !p.TargetType.Valid() {
		errs = append(errs, fmt.Sprintf("Unsupported target type: %s", p.TargetType))
	}

	return domain.ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
