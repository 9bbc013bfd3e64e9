package application

import "nexus-promotion/internal/service/promotion/domain"

// EvaluateRequest 是结算链路发起的一次促销评估请求
type EvaluateRequest struct {
	RequestID string                    `json:"requestId"`
	OrderID   string                    `json:"orderId,omitempty"`
	Context   domain.EligibilityContext `json:"context"`
	// Codes 是用户输入的促销码；配置了 Code 的促销只有在这里出现时才参与评估
	Codes []string `json:"codes,omitempty"`
}

func (r *EvaluateRequest) hasCode(code string) bool {
	for _, c := range r.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// EvaluateResponse 是评估结果
type EvaluateResponse struct {
	DecisionID string                          `json:"decisionId"`
	Results    []domain.PromotionResult        `json:"results"`
	Resolution domain.ConflictResolutionResult `json:"resolution"`
	// Ineligible 记录未通过资格判定的促销及原因
	Ineligible  map[string]string `json:"ineligible,omitempty"`
	FinalAmount float64           `json:"finalAmount"`
}

// GenerateCodeRequest 生成促销码或券码
type GenerateCodeRequest struct {
	Kind   CodeKind `json:"kind"`
	Prefix string   `json:"prefix,omitempty"`
}

type CodeKind string

const (
	CodeKindPromotion CodeKind = "PROMOTION"
	CodeKindCoupon    CodeKind = "COUPON"
)
