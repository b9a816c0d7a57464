package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics counts cart mutations by operation and outcome.
type CartMetrics struct {
	mutations *prometheus.CounterVec
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation and result.",
	}, []string{"op", "result"})
	reg.MustRegister(mutations)
	return &CartMetrics{mutations: mutations}
}

// IncMutation records one mutation; result is "ok" or a rejection reason.
func (m *CartMetrics) IncMutation(op, result string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(op), normalizeLabel(result)).Inc()
}
