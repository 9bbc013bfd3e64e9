package bootstrap

import (
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是服务的完整配置。加载顺序：默认值 → YAML 文件 → Nacos → 环境变量，后者覆盖前者。
type Config struct {
	App   AppConfig   `yaml:"app" envPrefix:"APP_"`
	Infra InfraConfig `yaml:"infra"`
}

type AppConfig struct {
	ServiceName  string        `yaml:"service_name" env:"SERVICE_NAME"`
	LogLevel     string        `yaml:"log_level" env:"LOG_LEVEL"`
	MetricsAddr  string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
	Engine       EngineConfig  `yaml:"engine" envPrefix:"ENGINE_"`
	FeatureFlags FeatureFlags  `yaml:"feature_flags" envPrefix:"FLAG_"`
	Handler      HandlerConfig `yaml:"handler" envPrefix:"HANDLER_"`
}

// EngineConfig 在启动时构造引擎用，不支持热更新
type EngineConfig struct {
	MaxRuleDepth            int  `yaml:"max_rule_depth" env:"MAX_RULE_DEPTH"`
	HighestDiscountEviction bool `yaml:"highest_discount_eviction" env:"HIGHEST_DISCOUNT_EVICTION"`
}

// FeatureFlags 支持通过 Nacos 热更新
type FeatureFlags struct {
	PublishDecisions bool `yaml:"publish_decisions" env:"PUBLISH_DECISIONS"`
}

type HandlerConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type InfraConfig struct {
	Jaeger JaegerConfig `yaml:"jaeger" envPrefix:"JAEGER_"`
	MySQL  MySQLConfig  `yaml:"mysql" envPrefix:"MYSQL_"`
	Redis  RedisConfig  `yaml:"redis" envPrefix:"REDIS_"`
	Kafka  KafkaConfig  `yaml:"kafka" envPrefix:"KAFKA_"`
	Nacos  NacosConfig  `yaml:"nacos" envPrefix:"NACOS_"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"DATABASE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN 用 go-sql-driver 的 Config 拼出连接串，时间统一按 UTC 解析
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type KafkaConfig struct {
	Brokers         []string `yaml:"brokers" env:"BROKERS" envSeparator:","`
	RequestTopic    string   `yaml:"request_topic" env:"REQUEST_TOPIC"`
	DecisionTopic   string   `yaml:"decision_topic" env:"DECISION_TOPIC"`
	DeadLetterTopic string   `yaml:"dead_letter_topic" env:"DEAD_LETTER_TOPIC"`
	GroupID         string   `yaml:"group_id" env:"GROUP_ID"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"server_addrs" env:"SERVER_ADDRS"`
	Namespace   string `yaml:"namespace" env:"NAMESPACE"`
	Group       string `yaml:"group" env:"GROUP"`
	DataID      string `yaml:"data_id" env:"DATA_ID"`
}

// DefaultConfig 返回本地开发可直接使用的默认配置
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			ServiceName:  "promotion-engine",
			LogLevel:     "info",
			MetricsAddr:  ":8081",
			Engine:       EngineConfig{MaxRuleDepth: 64},
			FeatureFlags: FeatureFlags{PublishDecisions: true},
			Handler:      HandlerConfig{Timeout: 2 * time.Second},
		},
		Infra: InfraConfig{
			Jaeger: JaegerConfig{SampleRatio: 1},
			MySQL: MySQLConfig{
				Host: "localhost", Port: 3306, User: "root", Database: "nexus_promotion",
				MaxOpenConns: 20, MaxIdleConns: 10, ConnMaxLifetime: 30 * time.Minute,
			},
			Redis: RedisConfig{Addr: "localhost:6379"},
			Kafka: KafkaConfig{
				Brokers:         []string{"localhost:9092"},
				RequestTopic:    "promotion.evaluate.request",
				DecisionTopic:   "promotion.decision",
				DeadLetterTopic: "promotion.evaluate.request.dlt",
				GroupID:         "promotion-engine-group",
			},
			Nacos: NacosConfig{Group: "DEFAULT_GROUP"},
		},
	}
}

// LoadConfig 按默认值、YAML 文件、环境变量的顺序加载配置。path 为空时跳过文件。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "read config file %s", path)
		}
		if err := cfg.MergeYAML(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeYAML 把一份 YAML 覆盖到当前配置上，未出现的字段保持原值
func (c *Config) MergeYAML(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return pkgerrors.Wrap(err, "parse yaml config")
	}
	return nil
}

// ApplyEnv 用环境变量覆盖配置，未设置的变量不影响已有值
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return pkgerrors.Wrap(err, "parse env config")
	}
	return nil
}

// Validate 检查启动必需的配置项
func (c *Config) Validate() error {
	switch {
	case c.App.ServiceName == "":
		return pkgerrors.New("app.service_name is required")
	case len(c.Infra.Kafka.Brokers) == 0:
		return pkgerrors.New("infra.kafka.brokers is required")
	case c.Infra.Kafka.RequestTopic == "" || c.Infra.Kafka.GroupID == "":
		return pkgerrors.New("infra.kafka.request_topic and group_id are required")
	case c.Infra.MySQL.Host == "" || c.Infra.MySQL.Database == "":
		return pkgerrors.New("infra.mysql.host and database are required")
	case c.App.Engine.MaxRuleDepth <= 0:
		return pkgerrors.New("app.engine.max_rule_depth must be positive")
	case c.Infra.Jaeger.SampleRatio < 0 || c.Infra.Jaeger.SampleRatio > 1:
		return pkgerrors.New("infra.jaeger.sample_ratio must be within [0, 1]")
	}
	return nil
}

var currentConfig atomic.Pointer[Config]

// GetCurrentConfig 返回当前生效的配置，Nacos 推送变更后会被整体替换
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func setCurrentConfig(cfg *Config) {
	currentConfig.Store(cfg)
}
