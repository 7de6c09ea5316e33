package ledger

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/tradeflow/internal/outbox"
)

// Metrics tracks projection throughput and failures.
type Metrics struct {
	entries  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewMetrics registers the ledger collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeflow_ledger_entries_projected_total",
			Help: "Ledger entries written by event kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeflow_ledger_projection_failures_total",
			Help: "Ledger projections that failed by event kind.",
		}, []string{"kind"}),
	}
	registerer.MustRegister(m.entries, m.failures)
	return m
}

func (m *Metrics) projected(kind outbox.Kind, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.entries.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *Metrics) failed(kind outbox.Kind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(kind)).Inc()
}
