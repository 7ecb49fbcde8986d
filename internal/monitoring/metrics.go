// Package monitoring exports pipeline metrics to Prometheus and runs a
// periodic health check over the lead store.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahermangesh/Leads/internal/cost"
	"github.com/ahermangesh/Leads/internal/model"
	"github.com/ahermangesh/Leads/internal/oracle"
	"github.com/ahermangesh/Leads/internal/orchestrator"
)

// Metrics holds the pipeline collectors. Each Metrics owns its registry so
// several instances can coexist in tests.
//
// Metrics:
//   - leads_live{state} - leads currently in each state past New, in this process
//   - leads_transitions_total{from,to} - state transitions applied
//   - leads_failures_total{reason} - leads that reached Failed
//   - leads_retries_total - retries spent by leads that reached a terminal state
//   - leads_stored{state} - leads per state in the store, refreshed by the Checker
//   - leads_sent_window - sends within the checker lookback window
//   - leads_failure_rate - failed / (failed + sent) within the lookback window
//   - leads_oracle_tokens_total{provider,model,direction} - oracle tokens consumed
//   - leads_oracle_cost_usd_total{provider,model} - estimated oracle spend
type Metrics struct {
	registry *prometheus.Registry

	LiveLeads   *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Retries     prometheus.Counter

	StoredLeads *prometheus.GaugeVec
	SentWindow  prometheus.Gauge
	FailureRate prometheus.Gauge

	OracleTokens *prometheus.CounterVec
	OracleCost   *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		LiveLeads: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leads_live",
			Help: "Leads per pipeline state in this process",
		}, []string{"state"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_transitions_total",
			Help: "State transitions applied",
		}, []string{"from", "to"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_failures_total",
			Help: "Leads that reached Failed, by reason code",
		}, []string{"reason"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "leads_retries_total",
			Help: "Retries spent by leads that reached a terminal state",
		}),
		StoredLeads: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leads_stored",
			Help: "Leads per pipeline state in the store",
		}, []string{"state"}),
		SentWindow: f.NewGauge(prometheus.GaugeOpts{
			Name: "leads_sent_window",
			Help: "Emails sent within the lookback window",
		}),
		FailureRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "leads_failure_rate",
			Help: "Failed over finished leads within the lookback window",
		}),
		OracleTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_oracle_tokens_total",
			Help: "Oracle tokens consumed, by direction (input or output)",
		}, []string{"provider", "model", "direction"}),
		OracleCost: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leads_oracle_cost_usd_total",
			Help: "Estimated oracle spend in USD",
		}, []string{"provider", "model"}),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnTransition implements orchestrator.Observer.
func (m *Metrics) OnTransition(ev orchestrator.Event) {
	tr := ev.Transition
	// Leads enter New without a transition, so New is never counted.
	if tr.From != model.StateNew {
		m.LiveLeads.WithLabelValues(string(tr.From)).Dec()
	}
	m.LiveLeads.WithLabelValues(string(tr.To)).Inc()
	m.Transitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()

	if tr.To == model.StateFailed {
		m.Failures.WithLabelValues(string(tr.Reason)).Inc()
	}
	if tr.To.Terminal() {
		m.Retries.Add(float64(tr.Retries))
	}
}

// UsageRecorder returns an oracle.UsageFunc that counts tokens and prices
// them with calc.
func (m *Metrics) UsageRecorder(calc *cost.Calculator) oracle.UsageFunc {
	return func(u oracle.Usage) {
		m.OracleTokens.WithLabelValues(u.Provider, u.Model, "input").Add(float64(u.InputTokens))
		m.OracleTokens.WithLabelValues(u.Provider, u.Model, "output").Add(float64(u.OutputTokens))
		m.OracleCost.WithLabelValues(u.Provider, u.Model).Add(calc.Oracle(u.Provider, u.Model, u.InputTokens, u.OutputTokens))
	}
}
