package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts lifecycle activity on orders.
type OrderMetrics struct {
	created     prometheus.Counter
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders committed at checkout.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Applied order status transitions.",
	}, []string{"from", "to"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transition_rejections_total",
		Help: "Rejected order status transitions by reason.",
	}, []string{"reason"})
	reg.MustRegister(created, transitions, rejections)
	return &OrderMetrics{
		created:     created,
		transitions: transitions,
		rejections:  rejections,
	}
}

// IncCreated counts a committed order.
func (m *OrderMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

// IncTransition counts an applied transition.
func (m *OrderMetrics) IncTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncRejected counts a rejected transition.
func (m *OrderMetrics) IncRejected(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
