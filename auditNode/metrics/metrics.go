// Package metrics holds the node's Prometheus metrics and pushes them to a gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pauditd"

// Metrics is the set of node metrics, registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	// EventsByStatus is the number of stored audit events per status.
	EventsByStatus *prometheus.GaugeVec

	// AuditsCompleted counts finished analyses by audit state.
	AuditsCompleted *prometheus.CounterVec

	// AnalyzerRuns counts analyzer invocations by analyzer and status.
	AnalyzerRuns *prometheus.CounterVec

	// AnalysisDuration measures a full PerformAudit run per event.
	AnalysisDuration prometheus.Histogram

	// Transactions counts ledger write transactions by method and outcome.
	Transactions *prometheus.CounterVec

	// PoliceVerdicts counts police checks by verdict.
	PoliceVerdicts *prometheus.CounterVec

	// WorkerErrors counts failed worker iterations.
	WorkerErrors *prometheus.CounterVec

	HeadBlock      prometheus.Gauge
	GasPriceWei    prometheus.Gauge
	BalanceWei     prometheus.Gauge
	AssignedOnNode prometheus.Gauge
}

// New creates the metrics on a fresh registry, together with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		EventsByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "by_status",
			Help:      "Stored audit events per lifecycle status",
		}, []string{"status"}),
		AuditsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "completed_total",
			Help:      "Analyses completed by audit state",
		}, []string{"audit_state"}),
		AnalyzerRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analyzer",
			Name:      "runs_total",
			Help:      "Analyzer invocations by analyzer and status",
		}, []string{"analyzer", "status"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "analysis_duration_seconds",
			Help:      "Time from picking up an assigned event to its report being ready",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger write transactions by method and outcome",
		}, []string{"method", "outcome"}),
		PoliceVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "police",
			Name:      "verdicts_total",
			Help:      "Police checks by verdict",
		}, []string{"verdict"}),
		WorkerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "errors_total",
			Help:      "Failed worker iterations",
		}, []string{"worker"}),
		HeadBlock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "head_block",
			Help:      "Latest observed block number",
		}),
		GasPriceWei: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "gas_price_wei",
			Help:      "Gas price used for new transactions",
		}),
		BalanceWei: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "balance_wei",
			Help:      "Native balance of the node account",
		}),
		AssignedOnNode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "assigned_requests",
			Help:      "Requests the marketplace currently assigns to this node",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
