package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m.RequestTotal == nil {
		t.Error("RequestTotal should not be nil")
	}
	if m.RequestDurationMs == nil {
		t.Error("RequestDurationMs should not be nil")
	}
	if m.AttemptTotal == nil {
		t.Error("AttemptTotal should not be nil")
	}
	if m.TokensTotal == nil {
		t.Error("TokensTotal should not be nil")
	}
	if m.ToolInvocationTotal == nil {
		t.Error("ToolInvocationTotal should not be nil")
	}
	if m.GuardActionTotal == nil {
		t.Error("GuardActionTotal should not be nil")
	}
	if m.OfflineTotal == nil {
		t.Error("OfflineTotal should not be nil")
	}
}

func TestRecordRequest(t *testing.T) {
	// Use a fresh registry to avoid polluting the default one
	reg := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_sage_request_total",
		Help: "Test counter",
	}, []string{"role", "provider", "model", "status"})

	tokensTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_sage_tokens_total",
		Help: "Test counter",
	}, []string{"role", "model", "direction"})

	durationMs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_sage_request_duration_ms",
		Help:    "Test histogram",
		Buckets: []float64{100, 500, 1000},
	}, []string{"provider", "model"})

	failoverDepth := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_sage_failover_depth",
		Help:    "Test histogram",
		Buckets: []float64{1, 2, 3},
	}, []string{"status"})

	reg.MustRegister(requestTotal, tokensTotal, durationMs, failoverDepth)

	m := &Metrics{
		RequestTotal:      requestTotal,
		RequestDurationMs: durationMs,
		FailoverDepth:     failoverDepth,
		TokensTotal:       tokensTotal,
	}

	m.RecordRequest(RequestLabels{
		Role:             "student",
		Provider:         "gemini",
		Model:            "gemini-2.0-flash",
		Status:           "ok",
		DurationMs:       812,
		Attempts:         2,
		PromptTokens:     120,
		CompletionTokens: 48,
	})

	mf, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var sawRequest, sawTokens bool
	for _, fam := range mf {
		switch fam.GetName() {
		case "test_sage_request_total":
			sawRequest = true
			if got := counterValue(t, fam, "status", "ok"); got != 1 {
				t.Errorf("request_total = %v, want 1", got)
			}
		case "test_sage_tokens_total":
			sawTokens = true
			if got := counterValue(t, fam, "direction", "prompt"); got != 120 {
				t.Errorf("prompt tokens = %v, want 120", got)
			}
		}
	}
	if !sawRequest || !sawTokens {
		t.Errorf("missing families: request=%v tokens=%v", sawRequest, sawTokens)
	}
}

func counterValue(t *testing.T, fam *dto.MetricFamily, labelName, labelValue string) float64 {
	t.Helper()
	for _, metric := range fam.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("no metric with %s=%s in %s", labelName, labelValue, fam.GetName())
	return 0
}
