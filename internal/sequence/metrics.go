package sequence

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts counter contention per series.
type Metrics struct {
	retries    *prometheus.CounterVec
	exhaustion *prometheus.CounterVec
}

// NewMetrics registers the sequence collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeflow_sequence_retries_total",
			Help: "Counter increments retried after losing a race.",
		}, []string{"kind"}),
		exhaustion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeflow_sequence_exhausted_total",
			Help: "Issuances that failed after exhausting retries.",
		}, []string{"kind"}),
	}
	registerer.MustRegister(m.retries, m.exhaustion)
	return m
}

func (m *Metrics) retried(kind Kind) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) exhausted(kind Kind) {
	if m == nil {
		return
	}
	m.exhaustion.WithLabelValues(string(kind)).Inc()
}
