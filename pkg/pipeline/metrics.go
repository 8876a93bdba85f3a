package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zen-systems/llmrun/pkg/adapter"
	"github.com/zen-systems/llmrun/pkg/pricing"
)

// Metrics holds the Prometheus collectors updated by a Runner.
type Metrics struct {
	calls    *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	cost     *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrun_calls_total",
			Help: "Successful model calls.",
		}, []string{"provider", "model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrun_tokens_total",
			Help: "Tokens consumed, by direction.",
		}, []string{"provider", "model", "direction"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrun_cost_usd_total",
			Help: "Attributed cost in USD.",
		}, []string{"provider", "model"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrun_latency_seconds",
			Help:    "Model call latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider", "model"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrun_stage_failures_total",
			Help: "Instrumentation stages that failed and were skipped.",
		}, []string{"stage"}),
	}

	for _, c := range []prometheus.Collector{m.calls, m.tokens, m.cost, m.latency, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeCall(meta adapter.Metadata, latency time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(meta.Provider, meta.Model).Inc()
	m.latency.WithLabelValues(meta.Provider, meta.Model).Observe(latency.Seconds())
}

func (m *Metrics) observeUsage(meta adapter.Metadata, usage adapter.Usage, cost pricing.Breakdown) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(meta.Provider, meta.Model, "input").Add(float64(usage.InputTokens))
	m.tokens.WithLabelValues(meta.Provider, meta.Model, "output").Add(float64(usage.OutputTokens))
	m.cost.WithLabelValues(meta.Provider, meta.Model).Add(cost.TotalCost)
}

func (m *Metrics) observeFailure(stage Stage) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(stage)).Inc()
}
