// cmd/promotion-engine/main.go
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"nexus-promotion/internal/pkg/bootstrap"
	"nexus-promotion/internal/pkg/mq"
	pkgredis "nexus-promotion/internal/pkg/redis"
	"nexus-promotion/internal/service/promotion/application"
	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/engine"
	"nexus-promotion/internal/service/promotion/infrastructure"
	"nexus-promotion/internal/service/promotion/interfaces"
)

const (
	serviceName       = "promotion-engine"
	defaultConfigPath = "configs/promotion-engine.yaml"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		ConfigPath:  configPath,
		Run:         run,
	})
}

func run(ctx context.Context, app bootstrap.AppCtx) (func(context.Context), error) {
	cfg := app.Config

	// 1. 创建基础设施层的具体实现 (Driven Adapters)
	db, err := infrastructure.NewGormDB(cfg.Infra.MySQL.DSN(), cfg.Infra.MySQL.MaxOpenConns, cfg.Infra.MySQL.MaxIdleConns, cfg.Infra.MySQL.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	catalog := infrastructure.NewGormPromotionRepository(db)

	redisClient, err := pkgredis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		return nil, err
	}
	usage := infrastructure.NewRedisUsageReader(redisClient)

	decisionWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.DecisionTopic)
	dltWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.DeadLetterTopic)
	publisher := &flaggedPublisher{next: infrastructure.NewDecisionKafkaPublisher(decisionWriter)}

	// 2. 创建引擎与应用服务
	opts := []engine.Option{
		engine.WithMaxRuleDepth(cfg.App.Engine.MaxRuleDepth),
		engine.WithLogger(log.Logger),
	}
	if cfg.App.Engine.HighestDiscountEviction {
		opts = append(opts, engine.WithHighestDiscountEviction())
	}
	eng := engine.New(opts...)

	appService := application.NewPromotionService(
		catalog, catalog, usage, catalog, publisher,
		eng, app.Tracer, application.NewMetrics(app.Registry),
	)

	// 3. 创建驱动适配器 (Driving Adapter)，并启动
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.RequestTopic, cfg.Infra.Kafka.GroupID)
	consumer := interfaces.NewEvaluationConsumerAdapter(reader, appService, dltWriter, app.Tracer, cfg.App.Handler.Timeout)
	consumer.Start(ctx)

	stop := func(ctx context.Context) {
		consumer.Stop(ctx)
		if err := decisionWriter.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close decision writer")
		}
		if err := dltWriter.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close dead letter writer")
		}
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return stop, nil
}

// flaggedPublisher 在发布前读取热更新的开关，关闭时直接丢弃决策事件
type flaggedPublisher struct {
	next domain.DecisionPublisher
}

func (p *flaggedPublisher) PublishDecision(ctx context.Context, event *domain.DecisionEvent) error {
	if !bootstrap.GetCurrentConfig().App.FeatureFlags.PublishDecisions {
		return nil
	}
	return p.next.PublishDecision(ctx, event)
}
