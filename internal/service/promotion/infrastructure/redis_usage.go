package infrastructure

import (
	"context"
	"fmt"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// usageKeyPattern 是用户维度使用次数的计数器 key，由订单服务在核销时 INCR。
const usageKeyPattern = "promotion:usage:%s:%s"

func usageKey(promotionID, customerID string) string {
	return fmt.Sprintf(usageKeyPattern, promotionID, customerID)
}

// RedisUsageReader 从 Redis 读取用户维度的促销使用次数，只读。
type RedisUsageReader struct {
	client redis.Cmdable
}

func NewRedisUsageReader(client redis.Cmdable) *RedisUsageReader {
	return &RedisUsageReader{client: client}
}

// CustomerUsage 用一次 MGET 取回所有计数，缺失的 key 视为 0。
func (r *RedisUsageReader) CustomerUsage(ctx context.Context, customerID string, promotionIDs []string) (map[string]int, error) {
	if len(promotionIDs) == 0 {
		return map[string]int{}, nil
	}
	keys := make([]string, len(promotionIDs))
	for i, id := range promotionIDs {
		keys[i] = usageKey(id, customerID)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "mget usage counters for customer %s", customerID)
	}
	return parseUsageCounts(promotionIDs, vals)
}

func parseUsageCounts(promotionIDs []string, vals []any) (map[string]int, error) {
	if len(vals) != len(promotionIDs) {
		return nil, fmt.Errorf("usage counters: got %d values for %d keys", len(vals), len(promotionIDs))
	}
	counts := make(map[string]int, len(promotionIDs))
	for i, v := range vals {
		if v == nil {
			counts[promotionIDs[i]] = 0
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("usage counter %s: unexpected type %T", promotionIDs[i], v)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "usage counter %s", promotionIDs[i])
		}
		counts[promotionIDs[i]] = n
	}
	return counts, nil
}
