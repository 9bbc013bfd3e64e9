package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 是评估链路的 Prometheus 指标。nil 的 *Metrics 可以直接调用，什么都不记录。
type Metrics struct {
	evaluations *prometheus.CounterVec
	verdicts    *prometheus.CounterVec
	discount    prometheus.Histogram
	duration    prometheus.Histogram
	// ruleEvaluation 是单个促销资格判定（含规则树求值）的耗时。
	ruleEvaluation prometheus.Histogram
}

const (
	outcomeSuccess      = "success"
	outcomeInvalid      = "invalid"
	outcomeCatalogError = "catalog_error"

	verdictSelected   = "selected"
	verdictRejected   = "rejected"
	verdictIneligible = "ineligible"
)

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion",
			Name:      "evaluations_total",
			Help:      "Promotion evaluations by outcome.",
		}, []string{"outcome"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion",
			Name:      "verdicts_total",
			Help:      "Per-promotion verdicts produced by evaluations.",
		}, []string{"verdict"}),
		discount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "promotion",
			Name:      "total_discount",
			Help:      "Total discount granted per evaluation.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "promotion",
			Name:      "evaluation_duration_seconds",
			Help:      "Latency of a full promotion evaluation.",
			Buckets:   prometheus.DefBuckets,
		}),
		ruleEvaluation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "promotion",
			Name:      "rule_evaluation_duration_seconds",
			Help:      "Latency of a single promotion eligibility check, rule tree included.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
	}
	reg.MustRegister(m.evaluations, m.verdicts, m.discount, m.duration, m.ruleEvaluation)
	return m
}

func (m *Metrics) observeOutcome(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeDecision(selected, rejected, ineligible int, totalDiscount float64) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(verdictSelected).Add(float64(selected))
	m.verdicts.WithLabelValues(verdictRejected).Add(float64(rejected))
	m.verdicts.WithLabelValues(verdictIneligible).Add(float64(ineligible))
	m.discount.Observe(totalDiscount)
}

func (m *Metrics) observeRuleEvaluation(started time.Time) {
	if m == nil {
		return
	}
	m.ruleEvaluation.Observe(time.Since(started).Seconds())
}
