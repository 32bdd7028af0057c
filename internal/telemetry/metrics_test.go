package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m.CompletionTotal == nil {
		t.Error("CompletionTotal should not be nil")
	}
	if m.RequestDurationMs == nil {
		t.Error("RequestDurationMs should not be nil")
	}
	if m.TokensTotal == nil {
		t.Error("TokensTotal should not be nil")
	}
	if m.CostUSDTotal == nil {
		t.Error("CostUSDTotal should not be nil")
	}
	if m.RegistryReloadTotal == nil {
		t.Error("RegistryReloadTotal should not be nil")
	}
}

func TestRecordCompletion(t *testing.T) {
	// Use a fresh registry to avoid polluting the default one
	reg := prometheus.NewRegistry()

	completionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_promptlab_completion_total",
		Help: "Test counter",
	}, []string{"model", "view", "status"})

	tokensTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_promptlab_tokens_total",
		Help: "Test counter",
	}, []string{"model", "direction"})

	durationMs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_promptlab_request_duration_ms",
		Help:    "Test histogram",
		Buckets: []float64{100, 500, 1000},
	}, []string{"model"})

	costTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_promptlab_cost_usd_total",
		Help: "Test counter",
	}, []string{"model"})

	reloadTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_promptlab_registry_reload_total",
		Help: "Test counter",
	})

	reg.MustRegister(completionTotal, tokensTotal, durationMs, costTotal, reloadTotal)

	m := &Metrics{
		CompletionTotal:     completionTotal,
		RequestDurationMs:   durationMs,
		TokensTotal:         tokensTotal,
		CostUSDTotal:        costTotal,
		RegistryReloadTotal: reloadTotal,
	}

	m.RecordCompletion(CompletionLabels{
		Model:            "GPT-4o",
		View:             "main",
		Status:           "200",
		DurationMs:       750,
		PromptTokens:     100,
		CompletionTokens: 50,
		CostUSD:          0.06,
	})
	m.RecordRegistryReload()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	completions := byName["test_promptlab_completion_total"]
	if completions == nil || len(completions.Metric) != 1 {
		t.Fatal("expected one completion_total series")
	}
	if got := completions.Metric[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("completion_total = %v, want 1", got)
	}

	tokens := byName["test_promptlab_tokens_total"]
	if tokens == nil || len(tokens.Metric) != 2 {
		t.Fatal("expected prompt and completion token series")
	}
	var sum float64
	for _, metric := range tokens.Metric {
		sum += metric.GetCounter().GetValue()
	}
	if sum != 150 {
		t.Errorf("token total = %v, want 150", sum)
	}

	cost := byName["test_promptlab_cost_usd_total"]
	if cost == nil || cost.Metric[0].GetCounter().GetValue() != 0.06 {
		t.Error("cost_usd_total not recorded")
	}

	reloads := byName["test_promptlab_registry_reload_total"]
	if reloads == nil || reloads.Metric[0].GetCounter().GetValue() != 1 {
		t.Error("registry_reload_total not recorded")
	}
}

func TestRecordCompletion_ZeroTokensNotCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	tokensTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_zero_tokens_total",
		Help: "Test counter",
	}, []string{"model", "direction"})
	reg.MustRegister(tokensTotal)

	m := &Metrics{
		CompletionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "x1", Help: "x"}, []string{"model", "view", "status"}),
		RequestDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "x2", Help: "x", Buckets: []float64{1},
		}, []string{"model"}),
		TokensTotal:         tokensTotal,
		CostUSDTotal:        prometheus.NewCounterVec(prometheus.CounterOpts{Name: "x3", Help: "x"}, []string{"model"}),
		RegistryReloadTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "x4", Help: "x"}),
	}

	m.RecordCompletion(CompletionLabels{Model: "m", View: "main", Status: "502"})

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == "test_zero_tokens_total" && len(f.Metric) != 0 {
			t.Error("zero token counts must not create series")
		}
	}
}
