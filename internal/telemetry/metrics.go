package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the workshop gateway.
type Metrics struct {
	CompletionTotal     *prometheus.CounterVec
	RequestDurationMs   *prometheus.HistogramVec
	TokensTotal         *prometheus.CounterVec
	CostUSDTotal        *prometheus.CounterVec
	RegistryReloadTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		CompletionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_completion_total",
			Help: "Total completion requests processed, by model, view, and status.",
		}, []string{"model", "view", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "promptlab_request_duration_ms",
			Help:    "Completion request duration in milliseconds, provider latency included.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_tokens_total",
			Help: "Total tokens processed, by model and direction.",
		}, []string{"model", "direction"}),

		CostUSDTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_cost_usd_total",
			Help: "Estimated total cost in USD, by model.",
		}, []string{"model"}),

		RegistryReloadTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "promptlab_registry_reload_total",
			Help: "Times the model registry snapshot was reloaded from disk.",
		}),
	}
}

// CompletionLabels holds the label values for recording one completion.
type CompletionLabels struct {
	Model            string
	View             string
	Status           string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// RecordCompletion records metrics for a finished completion request.
func (m *Metrics) RecordCompletion(labels CompletionLabels) {
	m.CompletionTotal.WithLabelValues(labels.Model, labels.View, labels.Status).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Model).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "completion").Add(float64(labels.CompletionTokens))
	}
	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Model).Add(labels.CostUSD)
	}
}

// RecordRegistryReload counts a registry snapshot reload.
func (m *Metrics) RecordRegistryReload() {
	m.RegistryReloadTotal.Inc()
}
