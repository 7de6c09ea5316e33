package lifecycle

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts best-effort side effects that failed after commit.
type Metrics struct {
	sideEffects *prometheus.CounterVec
}

// NewMetrics registers the lifecycle collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeflow_lifecycle_side_effect_failures_total",
			Help: "Post-commit side effects that failed, by effect.",
		}, []string{"effect"}),
	}
	registerer.MustRegister(m.sideEffects)
	return m
}

func (m *Metrics) sideEffectFailed(effect string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(effect).Inc()
}
