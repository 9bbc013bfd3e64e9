package infrastructure

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/service/promotion/domain"
)

// GormPromotionRepository 是促销目录的只读 GORM 实现，
// 同时实现 PromotionRepository、ConflictRuleRepository 和 UsageHistoryReader。
type GormPromotionRepository struct {
	db *gorm.DB
}

// NewGormPromotionRepository 创建一个新的 GORM 仓储实例
func NewGormPromotionRepository(db *gorm.DB) *GormPromotionRepository {
	return &GormPromotionRepository{db: db}
}

// ListActivePromotions 粗筛状态和时间窗口，结束时间当刻仍算有效。
// 适用条件无法解析的促销会被跳过并记录告警，不会让整次评估失败。
func (r *GormPromotionRepository) ListActivePromotions(ctx context.Context, at time.Time) ([]*domain.Promotion, error) {
	var models []PromotionModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusActive)).
		Where("start_date <= ?", at).
		Where("end_date IS NULL OR end_date >= ?", at).
		Order("priority DESC, id ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query active promotions")
	}

	promotions := make([]*domain.Promotion, 0, len(models))
	for i := range models {
		p, err := ToDomainPromotion(&models[i])
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("promotion_id", models[i].PromotionKey).Msg("skipping promotion with malformed rules")
			continue
		}
		promotions = append(promotions, p)
	}
	return promotions, nil
}

// FindByID 按业务 ID 查找促销
func (r *GormPromotionRepository) FindByID(ctx context.Context, id string) (*domain.Promotion, error) {
	var model PromotionModel
	err := r.db.WithContext(ctx).Where("promotion_key = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPromotionNotFound
		}
		return nil, pkgerrors.Wrapf(err, "find promotion %s", id)
	}
	return ToDomainPromotion(&model)
}

// ListConflictRules 返回所有启用的冲突规则，按创建顺序排列（先匹配者优先）。
func (r *GormPromotionRepository) ListConflictRules(ctx context.Context) ([]domain.ConflictRule, error) {
	var models []ConflictRuleModel
	err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("id ASC").Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "query conflict rules")
	}
	rules := make([]domain.ConflictRule, 0, len(models))
	for i := range models {
		rules = append(rules, ToDomainConflictRule(&models[i]))
	}
	return rules, nil
}

// ListUsage 读取 [from, to) 内的使用流水
func (r *GormPromotionRepository) ListUsage(ctx context.Context, promotionID string, from, to time.Time) ([]domain.UsageRecord, error) {
	var models []PromotionUsageModel
	err := r.db.WithContext(ctx).
		Where("promotion_key = ? AND used_at >= ? AND used_at < ?", promotionID, from, to).
		Order("used_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "query usage of promotion %s", promotionID)
	}
	records := make([]domain.UsageRecord, 0, len(models))
	for i := range models {
		records = append(records, ToDomainUsageRecord(&models[i]))
	}
	return records, nil
}
