package engine

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPromotionPrefix = "PROMO"
	DefaultCouponPrefix    = "COUPON"

	promotionSuffixLen = 4
	couponSuffixLen    = 6
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GeneratePromotionCode 生成 {prefix}{毫秒时间戳36进制}{4位随机} 形式的促销码。
// 不保证全局唯一，落库时由唯一索引兜底。
func GeneratePromotionCode(prefix string) string {
	if prefix == "" {
		prefix = DefaultPromotionPrefix
	}
	return generateCode(prefix, promotionSuffixLen, time.Now())
}

// GenerateCouponCode 同 GeneratePromotionCode，随机部分为 6 位。
func GenerateCouponCode(prefix string) string {
	if prefix == "" {
		prefix = DefaultCouponPrefix
	}
	return generateCode(prefix, couponSuffixLen, time.Now())
}

func generateCode(prefix string, suffixLen int, at time.Time) string {
	var b strings.Builder
	b.Grow(len(prefix) + 9 + suffixLen)
	b.WriteString(prefix)
	b.WriteString(strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36)))
	for range suffixLen {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}
