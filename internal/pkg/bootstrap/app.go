// Package bootstrap 封装了服务的通用启动、配置加载和优雅关停逻辑。
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/pkg/nacos"
	"nexus-promotion/internal/tracing"
)

// AppCtx 是启动阶段交给具体服务的公共组件
type AppCtx struct {
	Config   *Config
	Tracer   trace.Tracer
	Registry prometheus.Registerer
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	ConfigPath  string
	// Run 装配并启动服务自身的组件，返回的 stop 会在关停时以带超时的 ctx 调用
	Run func(ctx context.Context, app AppCtx) (stop func(context.Context), err error)
}

// StartService 封装了服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	// 1. 加载配置：本地文件与环境变量，再叠加 Nacos 上的远程配置
	cfg, err := LoadConfig(info.ConfigPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if info.ServiceName != "" {
		cfg.App.ServiceName = info.ServiceName
	}
	logger.Init(cfg.App.ServiceName, cfg.App.LogLevel, os.Stdout)

	nacosClient, err := loadRemoteConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load remote config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setCurrentConfig(cfg)

	// 2. 初始化核心组件
	tp, err := tracing.InitTracerProvider(cfg.App.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsServer := startMetricsServer(cfg.App.MetricsAddr, registry)

	// 3. 启动服务自身的组件
	runCtx, cancelRun := context.WithCancel(context.Background())
	stop, err := info.Run(runCtx, AppCtx{
		Config:   cfg,
		Tracer:   otel.Tracer(cfg.App.ServiceName),
		Registry: registry,
	})
	if err != nil {
		cancelRun()
		log.Fatal().Err(err).Msg("failed to start service")
	}
	log.Info().Str("service", cfg.App.ServiceName).Msg("service started")

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞主 goroutine，直到接收到退出信号
	<-quit
	log.Info().Str("service", cfg.App.ServiceName).Msg("shutting down service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 按启动的逆序清理
	// a. 停止消费，等待处理中的消息完成
	cancelRun()
	if stop != nil {
		stop(ctx)
	}

	// b. 关闭监控端口
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down metrics server")
	}

	// c. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	} else {
		log.Info().Msg("tracer provider shut down")
	}

	if nacosClient != nil {
		nacosClient.Close()
	}

	log.Info().Str("service", cfg.App.ServiceName).Msg("service gracefully shut down")
}

// loadRemoteConfig 在配置了 Nacos 时拉取远程配置并监听后续变更。
// 远程配置覆盖本地文件，环境变量仍然优先。
func loadRemoteConfig(cfg *Config) (*nacos.Client, error) {
	nc := cfg.Infra.Nacos
	if nc.ServerAddrs == "" || nc.DataID == "" {
		return nil, nil
	}

	client, err := nacos.NewConfigClient(nc.ServerAddrs, nc.Namespace, nc.Group)
	if err != nil {
		return nil, err
	}
	content, err := client.Fetch(nc.DataID)
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := applyRemote(cfg, content); err != nil {
		client.Close()
		return nil, err
	}

	err = client.Watch(nc.DataID, func(content string) {
		next := *GetCurrentConfig()
		if err := applyRemote(&next, content); err != nil {
			log.Error().Err(err).Msg("ignoring invalid remote config")
			return
		}
		if err := next.Validate(); err != nil {
			log.Error().Err(err).Msg("ignoring invalid remote config")
			return
		}
		setCurrentConfig(&next)
		log.Info().Bool("publish_decisions", next.App.FeatureFlags.PublishDecisions).Msg("remote config applied")
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func applyRemote(cfg *Config, content string) error {
	if content == "" {
		return nil
	}
	if err := cfg.MergeYAML([]byte(content)); err != nil {
		return err
	}
	return cfg.ApplyEnv()
}

// startMetricsServer 暴露 /metrics 与 /healthz
func startMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("starting health and metrics server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", addr).Msg("could not start metrics server")
		}
	}()
	return server
}
