// Package metrics exposes Prometheus instrumentation for the workflow engine.
// Every method is safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/agency-workflow/internal/domain/event"
)

// Metrics holds the engine's collectors
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration prometheus.Histogram
	Applications       *prometheus.CounterVec
	PaymentOutcomes    *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
	OutboxBacklog      prometheus.Gauge
	QueueDuration      prometheus.Histogram
}

// New registers all collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Transition requests by application type, decision and outcome",
		}, []string{"type", "decision", "outcome"}),
		TransitionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflow_transition_duration_seconds",
			Help:    "Duration of transition requests from load to event emission",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		Applications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_applications_created_total",
			Help: "Applications created by type",
		}, []string{"type"}),
		PaymentOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_payment_outcomes_total",
			Help: "Payment outcomes recorded by status",
		}, []string{"status"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_event_deliveries_total",
			Help: "Event deliveries by sink, event type and result",
		}, []string{"sink", "event_type", "result"}),
		OutboxBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "workflow_outbox_pending",
			Help: "Events waiting in the outbox for delivery",
		}),
		QueueDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflow_queue_duration_seconds",
			Help:    "Duration of task queue computations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// RecordTransition counts a transition request and its outcome
func (m *Metrics) RecordTransition(appType, decision, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(appType, decision, outcome).Inc()
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

// IncApplicationsCreated counts a new application
func (m *Metrics) IncApplicationsCreated(appType string) {
	if m == nil {
		return
	}
	m.Applications.WithLabelValues(appType).Inc()
}

// IncPaymentOutcome counts a recorded payment outcome
func (m *Metrics) IncPaymentOutcome(status string) {
	if m == nil {
		return
	}
	m.PaymentOutcomes.WithLabelValues(status).Inc()
}

// ObserveDelivery implements dispatcher.DeliveryObserver
func (m *Metrics) ObserveDelivery(sink string, eventType event.Type, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Deliveries.WithLabelValues(sink, eventType.String(), result).Inc()
}

// SetOutboxBacklog records the number of undelivered events
func (m *Metrics) SetOutboxBacklog(n int) {
	if m == nil {
		return
	}
	m.OutboxBacklog.Set(float64(n))
}

// ObserveQueue records the duration of a queue computation
func (m *Metrics) ObserveQueue(start time.Time) {
	if m == nil {
		return
	}
	m.QueueDuration.Observe(time.Since(start).Seconds())
}
