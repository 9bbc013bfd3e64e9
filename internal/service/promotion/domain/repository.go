package domain

import (
	"context"
	"time"
)

// PromotionRepository 定义了促销目录的只读访问接口。
// 这是领域层与基础设施层之间的"插座"，促销的写入由外部管理后台负责。
type PromotionRepository interface {
	// ListActivePromotions 返回在 at 时刻可能生效的促销（状态与时间窗口由存储粗筛，引擎会再次校验）。
	ListActivePromotions(ctx context.Context, at time.Time) ([]*Promotion, error)
	FindByID(ctx context.Context, id string) (*Promotion, error)
}

// ConflictRuleRepository 读取冲突规则。
type ConflictRuleRepository interface {
	ListConflictRules(ctx context.Context) ([]ConflictRule, error)
}

// UsageReader 读取用户维度的促销使用次数。计数的写入在调用方的事务里完成。
type UsageReader interface {
	CustomerUsage(ctx context.Context, customerID string, promotionIDs []string) (map[string]int, error)
}

// DecisionPublisher 把评估决策发布出去，供审计和下游消费。
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event *DecisionEvent) error
}

// UsageHistoryReader 读取促销使用流水，只用于报表统计。
type UsageHistoryReader interface {
	ListUsage(ctx context.Context, promotionID string, from, to time.Time) ([]UsageRecord, error)
}
