package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/pkg/mq"
	"nexus-promotion/internal/service/promotion/application"
	"nexus-promotion/internal/service/promotion/domain"
)

// Evaluator 是消费者驱动的应用服务用例
type Evaluator interface {
	EvaluatePromotions(ctx context.Context, req *application.EvaluateRequest) (*application.EvaluateResponse, error)
}

// MessageReader 是 *kafka.Reader 的最小抽象
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EvaluationConsumerAdapter 是一个驱动适配器，它监听评估请求并驱动应用服务。
type EvaluationConsumerAdapter struct {
	reader  MessageReader
	appSvc  Evaluator
	dlt     mq.MessageWriter // 可以为 nil，此时无法处理的消息只记日志
	tracer  trace.Tracer
	timeout time.Duration
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewEvaluationConsumerAdapter 创建一个新的Kafka消费者适配器。
func NewEvaluationConsumerAdapter(reader MessageReader, appSvc Evaluator, dlt mq.MessageWriter, tracer trace.Tracer, timeout time.Duration) *EvaluationConsumerAdapter {
	return &EvaluationConsumerAdapter{
		reader:  reader,
		appSvc:  appSvc,
		dlt:     dlt,
		tracer:  tracer,
		timeout: timeout,
	}
}

// Start 开始监听Kafka主题。这是一个长期运行的方法。
func (a *EvaluationConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Msg("evaluation consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			// 我们使用FetchMessage而不是ReadMessage，以便更好地控制退出逻辑
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				// 如果是上下文取消导致的错误，则正常退出
				if ctx.Err() != nil || a.stopped.Load() {
					logger.Ctx(ctx).Info().Msg("evaluation consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(time.Second) // 避免快速失败循环
				continue
			}

			a.processMessage(ctx, msg)

			// 消息处理完成后提交Offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (a *EvaluationConsumerAdapter) Stop(ctx context.Context) {
	a.stopped.Store(true)
	if err := a.reader.Close(); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("failed to close kafka reader")
	}
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("evaluation consumer stopped")
}

// processMessage 反序列化消息并调用应用服务。
// 无法解析的消息和目录不可用导致的失败转入死信队列，其余失败只记日志。
func (a *EvaluationConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) {
	ctx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := a.tracer.Start(ctx, "consumer.EvaluatePromotions", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", msg.Topic),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)

	var req application.EvaluateRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to unmarshal evaluation request")
		a.deadLetter(ctx, msg, err)
		return
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	if _, err := a.appSvc.EvaluatePromotions(ctx, &req); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Str("request_id", req.RequestID).Msg("failed to evaluate promotions")
		if errors.Is(err, domain.ErrCatalogUnavailable) || errors.Is(err, domain.ErrInvalidRequest) {
			a.deadLetter(ctx, msg, err)
		}
	}
}

func (a *EvaluationConsumerAdapter) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if a.dlt == nil {
		return
	}
	dlq := mq.DeadLetter(msg, cause)
	if err := mq.ProduceMessage(ctx, a.dlt, dlq.Key, dlq.Value, dlq.Headers...); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to forward message to dead letter topic")
	}
}
