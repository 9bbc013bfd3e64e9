package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"nexus-promotion/internal/service/promotion/domain"
)

// ResolutionStrategy 是冲突消解结果里固定回填的策略标签。
const ResolutionStrategy = "PRIORITY_BASED"

type verdict int

const (
	verdictAccept verdict = iota
	verdictReject
	verdictEvict // 候选胜出，淘汰已选中的一方
)

// ResolvePromotionConflicts 在一组可用促销中挑出最终生效的集合。
//
// 候选按资格分数降序（同分保持输入顺序）逐个尝试：对每个已选中的促销，
// 找到第一条同时覆盖二者的冲突规则并按其类型裁决，任何一次拒绝都让候选落选。
// 没有规则覆盖的两两组合互不影响。
func (e *Engine) ResolvePromotionConflicts(results []domain.PromotionResult, rules []domain.ConflictRule) domain.ConflictResolutionResult {
	candidates := make([]domain.PromotionResult, len(results))
	copy(candidates, results)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].EligibilityScore > candidates[j].EligibilityScore
	})

	selected := make([]domain.PromotionResult, 0, len(candidates))
	rejected := make([]domain.RejectedPromotion, 0)

	for _, cand := range candidates {
		accepted := true
		var reason string
		var evicted []int

		for i, sel := range selected {
			r := governingRule(rules, cand.PromotionID, sel.PromotionID)
			if r == nil {
				continue
			}
			v, why := e.judge(r, cand, sel)
			if v == verdictEvict {
				evicted = append(evicted, i)
				continue
			}
			if v == verdictReject {
				accepted, reason = false, why
				break
			}
		}

		if !accepted {
			rejected = append(rejected, domain.RejectedPromotion{PromotionID: cand.PromotionID, Reason: reason})
			continue
		}
		if len(evicted) > 0 {
			selected, rejected = evict(selected, rejected, evicted, cand.PromotionID)
		}
		selected = append(selected, cand)
	}

	ids := make([]string, 0, len(selected))
	total := decimal.Zero
	for _, s := range selected {
		ids = append(ids, s.PromotionID)
		if finite(s.DiscountAmount) {
			total = total.Add(decimal.NewFromFloat(s.DiscountAmount))
		}
	}

	return domain.ConflictResolutionResult{
		SelectedPromotions: ids,
		RejectedPromotions: rejected,
		TotalDiscount:      total.Round(2).InexactFloat64(),
		ResolutionStrategy: ResolutionStrategy,
	}
}

func governingRule(rules []domain.ConflictRule, a, b string) *domain.ConflictRule {
	for i := range rules {
		if rules[i].Governs(a, b) {
			return &rules[i]
		}
	}
	return nil
}

func (e *Engine) judge(r *domain.ConflictRule, cand, sel domain.PromotionResult) (verdict, string) {
	switch r.ConflictType {
	case domain.ConflictMutuallyExclusive:
		return verdictReject, fmt.Sprintf("Conflicts with promotion %s", sel.PromotionID)

	case domain.ConflictPriorityBased:
		// 候选分数更低时才会走到这里，只要分数为正就放行
		if cand.EligibilityScore > 0 {
			return verdictAccept, ""
		}
		return verdictReject, fmt.Sprintf("Lower priority than promotion %s", sel.PromotionID)

	case domain.ConflictHighestDiscount:
		if !e.highestDiscountEviction {
			return verdictAccept, ""
		}
		if cand.DiscountAmount > sel.DiscountAmount {
			return verdictEvict, ""
		}
		return verdictReject, fmt.Sprintf("Lower discount than promotion %s", sel.PromotionID)

	case domain.ConflictCustomerChoice:
		return verdictReject, fmt.Sprintf("Requires customer choice against promotion %s", sel.PromotionID)

	case domain.ConflictRuleBased:
		if r.ResolutionRules == "" {
			return verdictAccept, ""
		}
		ok, err := e.resolution.Allow(r.ResolutionRules, cand, sel)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("conflict_rule", r.ID).
				Str("candidate", cand.PromotionID).
				Msg("resolution rule failed, accepting candidate")
			return verdictAccept, ""
		}
		if !ok {
			return verdictReject, fmt.Sprintf("Resolution rule rejected against promotion %s", sel.PromotionID)
		}
		return verdictAccept, ""

	default:
		e.logger.Warn().Str("conflict_rule", r.ID).Str("conflict_type", string(r.ConflictType)).Msg("unknown conflict type ignored")
		return verdictAccept, ""
	}
}

// evict 把被淘汰的已选促销移入拒绝列表，保持其余已选促销的顺序。
func evict(selected []domain.PromotionResult, rejected []domain.RejectedPromotion, idx []int, winner string) ([]domain.PromotionResult, []domain.RejectedPromotion) {
	drop := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		drop[i] = struct{}{}
	}
	kept := selected[:0:0]
	for i, s := range selected {
		if _, ok := drop[i]; ok {
			rejected = append(rejected, domain.RejectedPromotion{
				PromotionID: s.PromotionID,
				Reason:      fmt.Sprintf("Replaced by higher discount promotion %s", winner),
			})
			continue
		}
		kept = append(kept, s)
	}
	return kept, rejected
}
