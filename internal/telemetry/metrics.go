package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestTotal        *prometheus.CounterVec
	RequestDurationMs   *prometheus.HistogramVec
	AttemptTotal        *prometheus.CounterVec
	FailoverDepth       *prometheus.HistogramVec
	TokensTotal         *prometheus.CounterVec
	ToolInvocationTotal *prometheus.CounterVec
	GuardActionTotal    *prometheus.CounterVec
	RateLimitHitTotal   *prometheus.CounterVec
	OfflineTotal        prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sage_request_total",
			Help: "Total number of chat requests processed by the gateway.",
		}, []string{"role", "provider", "model", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sage_request_duration_ms",
			Help:    "Total request duration in milliseconds (including provider latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 90000},
		}, []string{"provider", "model"}),

		AttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sage_provider_attempt_total",
			Help: "Provider attempts by outcome (ok or an error kind).",
		}, []string{"provider", "outcome"}),

		FailoverDepth: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sage_failover_depth",
			Help:    "Number of provider attempts a request needed before resolution.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		}, []string{"status"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sage_tokens_total",
			Help: "Total tokens processed.",
		}, []string{"role", "model", "direction"}),

		ToolInvocationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sage_tool_invocation_total",
			Help: "Tool executions by tool and status.",
		}, []string{"tool", "status"}),

		GuardActionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sage_guard_action_total",
			Help: "Inbound guard actions taken.",
		}, []string{"guard", "action"}),

		RateLimitHitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sage_rate_limit_hit_total",
			Help: "Requests rejected by rate limiting, by dimension.",
		}, []string{"dimension"}),

		OfflineTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sage_offline_response_total",
			Help: "Requests that exhausted the failover ladder and got the offline text.",
		}),
	}
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Role             string
	Provider         string
	Model            string
	Status           string
	DurationMs       float64
	Attempts         int
	PromptTokens     int
	CompletionTokens int
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(labels.Role, labels.Provider, labels.Model, labels.Status).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Provider, labels.Model).Observe(labels.DurationMs)
	m.FailoverDepth.WithLabelValues(labels.Status).Observe(float64(labels.Attempts))

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Role, labels.Model, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Role, labels.Model, "completion").Add(float64(labels.CompletionTokens))
	}
}

// RecordAttempt records one provider attempt.
func (m *Metrics) RecordAttempt(provider, outcome string) {
	m.AttemptTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordToolInvocation records a tool execution.
func (m *Metrics) RecordToolInvocation(tool, status string) {
	m.ToolInvocationTotal.WithLabelValues(tool, status).Inc()
}

// RecordGuardAction records a guard decision.
func (m *Metrics) RecordGuardAction(guard, action string) {
	m.GuardActionTotal.WithLabelValues(guard, action).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func (m *Metrics) RecordRateLimitHit(dimension string) {
	m.RateLimitHitTotal.WithLabelValues(dimension).Inc()
}

// RecordOffline records a fully exhausted failover ladder.
func (m *Metrics) RecordOffline() {
	m.OfflineTotal.Inc()
}
