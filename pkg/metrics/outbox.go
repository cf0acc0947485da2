package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks relay delivery outcomes.
type OutboxMetrics struct {
	delivered    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	queueDepth   prometheus.Gauge
}

// NewOutboxMetrics registers the relay metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_delivered_total",
		Help: "Outbox events handed to a sink.",
	}, []string{"event_type", "sink"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_delivery_failures_total",
		Help: "Retryable outbox delivery failures.",
	}, []string{"event_type", "sink"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_dead_lettered_total",
		Help: "Outbox events moved to the dead letter table.",
	}, []string{"event_type", "reason"})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_local_queue_depth",
		Help: "Events waiting in the in-process side effect queue.",
	})
	reg.MustRegister(delivered, failed, deadLettered, queueDepth)
	return &OutboxMetrics{
		delivered:    delivered,
		failed:       failed,
		deadLettered: deadLettered,
		queueDepth:   queueDepth,
	}
}

func (m *OutboxMetrics) IncDelivered(eventType, sink string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(eventType), normalizeLabel(sink)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType, sink string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(sink)).Inc()
}

func (m *OutboxMetrics) IncDeadLettered(eventType, reason string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

// SetQueueDepth records the current local queue length.
func (m *OutboxMetrics) SetQueueDepth(depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
