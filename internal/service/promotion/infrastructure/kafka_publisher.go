package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"nexus-promotion/internal/pkg/mq"
	"nexus-promotion/internal/service/promotion/domain"
)

// DecisionKafkaPublisher 实现了 domain.DecisionPublisher，把决策事件写入 Kafka。
type DecisionKafkaPublisher struct {
	writer mq.MessageWriter
}

func NewDecisionKafkaPublisher(writer mq.MessageWriter) *DecisionKafkaPublisher {
	return &DecisionKafkaPublisher{writer: writer}
}

// PublishDecision 以客户 ID 作为分区 key，保证同一客户的决策有序；匿名订单退化为决策 ID。
func (p *DecisionKafkaPublisher) PublishDecision(ctx context.Context, event *domain.DecisionEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal decision event: %w", err)
	}

	key := event.CustomerID
	if key == "" {
		key = event.DecisionID
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, p.writer, []byte(key), eventBytes)
}
