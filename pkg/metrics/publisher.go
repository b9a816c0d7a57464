package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PublisherMetrics records outbox publishing batches.
type PublisherMetrics struct {
	duration  prometheus.Histogram
	published prometheus.Counter
	failed    prometheus.Counter
	heldBack  prometheus.Counter
}

// NewPublisherMetrics registers the publisher metrics on the provided registerer.
func NewPublisherMetrics(reg prometheus.Registerer) *PublisherMetrics {
	if reg == nil {
		return &PublisherMetrics{}
	}
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_publish_batch_duration_seconds",
		Help:    "Duration of outbox publish batches in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events delivered to Pub/Sub.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_failed_total",
		Help: "Outbox publish attempts that failed.",
	})
	heldBack := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_held_back_total",
		Help: "Outbox events deferred behind a failed event of the same order.",
	})
	reg.MustRegister(duration, published, failed, heldBack)
	return &PublisherMetrics{
		duration:  duration,
		published: published,
		failed:    failed,
		heldBack:  heldBack,
	}
}

func (p *PublisherMetrics) ObserveBatch(duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.Observe(duration.Seconds())
}

func (p *PublisherMetrics) IncPublished() {
	if p == nil || p.published == nil {
		return
	}
	p.published.Inc()
}

func (p *PublisherMetrics) IncFailed() {
	if p == nil || p.failed == nil {
		return
	}
	p.failed.Inc()
}

func (p *PublisherMetrics) IncHeldBack() {
	if p == nil || p.heldBack == nil {
		return
	}
	p.heldBack.Inc()
}
