package domain

import (
	"strings"
	"time"

	"nexus-promotion/internal/service/promotion/rule"
)

// OrderItem 是订单中的一行商品。类目、品牌、卖家为空表示缺失。
type OrderItem struct {
	ProductID  string  `json:"productId"`
	CategoryID string  `json:"categoryId,omitempty"`
	BrandID    string  `json:"brandId,omitempty"`
	SellerID   string  `json:"sellerId,omitempty"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
	TotalPrice float64 `json:"totalPrice"`
}

// Address 收货地址。
type Address struct {
	Country    string `json:"country,omitempty"`
	State      string `json:"state,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// EligibilityContext 是一次评估时订单与用户数据的快照。
// 每次调用都新建，引擎只读不写。
type EligibilityContext struct {
	CustomerID        string         `json:"customerId,omitempty"`
	CustomerSegment   string         `json:"customerSegment,omitempty"`
	CustomerTags      []string       `json:"customerTags,omitempty"`
	OrderAmount       float64        `json:"orderAmount"`
	OrderItems        []OrderItem    `json:"orderItems"`
	AppliedPromotions []string       `json:"appliedPromotions,omitempty"`
	AppliedCoupons    []string       `json:"appliedCoupons,omitempty"`
	ShippingAddress   *Address       `json:"shippingAddress,omitempty"`
	PaymentMethod     string         `json:"paymentMethod,omitempty"`
	OrderDate         time.Time      `json:"orderDate"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// HasAppliedPromotion 判断某个促销是否已经被这笔订单使用。
func (c *EligibilityContext) HasAppliedPromotion(id string) bool {
	for _, a := range c.AppliedPromotions {
		if a == id {
			return true
		}
	}
	return false
}

// TotalQuantity 订单中所有商品的件数之和。
func (c *EligibilityContext) TotalQuantity() int {
	total := 0
	for _, item := range c.OrderItems {
		total += item.Quantity
	}
	return total
}

// accessor 从结构化的上下文里取出一个规则值。
type accessor func(c *EligibilityContext) rule.Value

// accessors 是规则变量路径到上下文字段的注册表。
// 路径按最长前缀匹配，剩余的段继续在返回值里下钻，例如
// "shippingAddress.country" 命中 "shippingAddress" 后再取 country。
var accessors = map[string]accessor{
	"customer.id":             func(c *EligibilityContext) rule.Value { return optString(c.CustomerID) },
	"customer.segment":        func(c *EligibilityContext) rule.Value { return optString(c.CustomerSegment) },
	"customer.tags":           func(c *EligibilityContext) rule.Value { return rule.Strings(c.CustomerTags) },
	"order.amount":            func(c *EligibilityContext) rule.Value { return rule.Number(c.OrderAmount) },
	"order.items":             func(c *EligibilityContext) rule.Value { return itemsValue(c.OrderItems) },
	"order.itemCount":         func(c *EligibilityContext) rule.Value { return rule.Number(float64(len(c.OrderItems))) },
	"order.quantity":          func(c *EligibilityContext) rule.Value { return rule.Number(float64(c.TotalQuantity())) },
	"order.date":              orderDate,
	"order.weekday":           orderWeekday,
	"order.appliedPromotions": func(c *EligibilityContext) rule.Value { return rule.Strings(c.AppliedPromotions) },
	"order.appliedCoupons":    func(c *EligibilityContext) rule.Value { return rule.Strings(c.AppliedCoupons) },
	"shipping.address":        shippingAddress,
	"payment.method":          func(c *EligibilityContext) rule.Value { return optString(c.PaymentMethod) },
	"metadata":                func(c *EligibilityContext) rule.Value { return metadataValue(c.Metadata) },
}

// 与上下文 JSON 字段同名的别名，兼容直接按字段名写的规则。
var accessorAliases = map[string]string{
	"customerId":        "customer.id",
	"customerSegment":   "customer.segment",
	"customerTags":      "customer.tags",
	"orderAmount":       "order.amount",
	"orderItems":        "order.items",
	"itemCount":         "order.itemCount",
	"orderDate":         "order.date",
	"appliedPromotions": "order.appliedPromotions",
	"appliedCoupons":    "order.appliedCoupons",
	"shippingAddress":   "shipping.address",
	"paymentMethod":     "payment.method",
}

func init() {
	for alias, target := range accessorAliases {
		accessors[alias] = accessors[target]
	}
}

// Lookup 实现 rule.Context。
func (c *EligibilityContext) Lookup(path string) rule.Value {
	if c == nil || path == "" {
		return rule.Absent
	}
	segments := strings.Split(path, ".")
	for i := len(segments); i > 0; i-- {
		if acc, ok := accessors[strings.Join(segments[:i], ".")]; ok {
			return acc(c).Walk(segments[i:])
		}
	}
	return rule.Absent
}

func optString(s string) rule.Value {
	if s == "" {
		return rule.Absent
	}
	return rule.String(s)
}

func orderDate(c *EligibilityContext) rule.Value {
	if c.OrderDate.IsZero() {
		return rule.Absent
	}
	return rule.String(c.OrderDate.UTC().Format(time.RFC3339))
}

func orderWeekday(c *EligibilityContext) rule.Value {
	if c.OrderDate.IsZero() {
		return rule.Absent
	}
	return rule.String(strings.ToLower(c.OrderDate.Weekday().String()))
}

func shippingAddress(c *EligibilityContext) rule.Value {
	a := c.ShippingAddress
	if a == nil {
		return rule.Absent
	}
	fields := map[string]rule.Value{}
	putOpt(fields, "country", a.Country)
	putOpt(fields, "state", a.State)
	putOpt(fields, "city", a.City)
	putOpt(fields, "postalCode", a.PostalCode)
	return rule.Object(fields)
}

func itemsValue(items []OrderItem) rule.Value {
	out := make([]rule.Value, len(items))
	for i, item := range items {
		fields := map[string]rule.Value{
			"productId":  rule.String(item.ProductID),
			"quantity":   rule.Number(float64(item.Quantity)),
			"price":      rule.Number(item.Price),
			"totalPrice": rule.Number(item.TotalPrice),
		}
		putOpt(fields, "categoryId", item.CategoryID)
		putOpt(fields, "brandId", item.BrandID)
		putOpt(fields, "sellerId", item.SellerID)
		out[i] = rule.Object(fields)
	}
	return rule.List(out...)
}

func metadataValue(m map[string]any) rule.Value {
	if m == nil {
		return rule.Absent
	}
	return rule.FromAny(m)
}

func putOpt(fields map[string]rule.Value, key, value string) {
	if value != "" {
		fields[key] = rule.String(value)
	}
}
