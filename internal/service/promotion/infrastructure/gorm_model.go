package infrastructure

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// PromotionModel 对应数据库中的 promotion 表。
// 列表类字段（TargetIDs、StackableWith）以逗号分隔存储。
type PromotionModel struct {
	gorm.Model
	PromotionKey      string `gorm:"uniqueIndex;size:64"`
	Name              string
	Description       string          `gorm:"type:text"`
	Code              sql.NullString  `gorm:"uniqueIndex;size:64"`
	Status            string          `gorm:"size:16;index"`
	DiscountType      string          `gorm:"size:32"`
	DiscountValue     float64         `gorm:"type:decimal(10,2)"`
	MaxDiscountAmount sql.NullFloat64 `gorm:"type:decimal(10,2)"`
	MinOrderAmount    sql.NullFloat64 `gorm:"type:decimal(10,2)"`
	TargetType        string          `gorm:"size:16"`
	TargetIDs         string          `gorm:"type:text"`
	EligibilityRules  sql.NullString  `gorm:"type:json"`
	UsageLimit        sql.NullInt64
	UsagePerCustomer  sql.NullInt64
	UsageCount        int
	StartDate         time.Time `gorm:"index"`
	EndDate           sql.NullTime
	Priority          int
	Stackable         bool
	StackableWith     string `gorm:"type:text"`
}

// TableName 指定 GORM 应该使用的表名
func (PromotionModel) TableName() string {
	return "promotion"
}

// ConflictRuleModel 对应数据库中的 promotion_conflict_rule 表
type ConflictRuleModel struct {
	gorm.Model
	RuleKey            string `gorm:"uniqueIndex;size:64"`
	ConflictType       string `gorm:"size:32"`
	ResolutionStrategy string `gorm:"size:32"`
	PromotionIDs       string `gorm:"type:text"`
	ResolutionRules    string `gorm:"type:text"`
	Enabled            bool   `gorm:"default:true"`
}

func (ConflictRuleModel) TableName() string {
	return "promotion_conflict_rule"
}

// PromotionUsageModel 对应 promotion_usage 流水表，由订单服务写入，这里只读。
type PromotionUsageModel struct {
	ID             uint   `gorm:"primaryKey"`
	PromotionKey   string `gorm:"index:idx_usage_promotion_time,priority:1;size:64"`
	CustomerID     string `gorm:"size:64"`
	OrderID        sql.NullString
	OrderAmount    float64   `gorm:"type:decimal(10,2)"`
	DiscountAmount float64   `gorm:"type:decimal(10,2)"`
	UsedAt         time.Time `gorm:"index:idx_usage_promotion_time,priority:2"`
}

func (PromotionUsageModel) TableName() string {
	return "promotion_usage"
}
