// Package engine 是促销决策的核心：资格判定、优惠计算与冲突消解。
//
// 引擎是纯计算：没有 I/O，没有跨调用的可变状态，一个 Engine
// 可以被任意多个 goroutine 同时使用。促销与冲突规则的读取、
// 使用次数的扣减都由调用方在引擎之外完成。
package engine

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nexus-promotion/internal/service/promotion/rule"
)

// Engine 持有一次性配置好的依赖，构造后只读。
type Engine struct {
	interpreter *rule.Interpreter
	now         func() time.Time
	logger      *zerolog.Logger
	maxDepth    int

	// 打开后 HIGHEST_DISCOUNT 会真正比较优惠金额并淘汰较小者
	highestDiscountEviction bool

	resolution *resolutionRules
}

type Option func(*Engine)

// WithClock 替换判断活动时间窗口用的时钟。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithInterpreter 使用外部构造的规则解释器。
func WithInterpreter(in *rule.Interpreter) Option {
	return func(e *Engine) {
		e.interpreter = in
	}
}

// WithMaxRuleDepth 设置适用条件表达式的最大嵌套深度。
// 与 WithInterpreter 同时使用时以传入的解释器为准。
func WithMaxRuleDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = &logger
	}
}

// WithHighestDiscountEviction 让 HIGHEST_DISCOUNT 冲突保留优惠金额更大的一方。
// 默认关闭，此时该类冲突直接放行候选促销。
func WithHighestDiscountEviction() Option {
	return func(e *Engine) {
		e.highestDiscountEviction = true
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		now:      time.Now,
		logger:   &log.Logger,
		maxDepth: rule.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interpreter == nil {
		e.interpreter = rule.NewInterpreter(rule.WithLogger(*e.logger), rule.WithMaxDepth(e.maxDepth))
	}
	e.resolution = newResolutionRules()
	return e
}

// Interpreter 返回引擎使用的规则解释器。
func (e *Engine) Interpreter() *rule.Interpreter { return e.interpreter }
