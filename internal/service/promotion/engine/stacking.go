package engine

import "nexus-promotion/internal/service/promotion/domain"

// CanPromotionsStack 判断两个促销能否同时作用于一笔订单：
// 双方都可叠加，并且至少一方在 StackableWith 中列出了对方。
// 结果对参数顺序对称。
func CanPromotionsStack(a, b *domain.Promotion) bool {
	if !a.Stackable || !b.Stackable {
		return false
	}
	return a.ListsStackable(b.ID) || b.ListsStackable(a.ID)
}
