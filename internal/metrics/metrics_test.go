package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/garyjia/agency-workflow/internal/domain/event"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTransition("RegularPermit", "Approve", "ok", time.Now())
	m.RecordTransition("RegularPermit", "Approve", "ok", time.Now())
	m.RecordTransition("RegularPermit", "Approve", "payment_not_verified", time.Now())
	m.IncApplicationsCreated("Renewal")
	m.IncPaymentOutcome("Verified")
	m.ObserveDelivery("redis", event.TypeApplicationTransitioned, nil)
	m.ObserveDelivery("redis", event.TypeApplicationTransitioned, errors.New("down"))
	m.SetOutboxBacklog(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("RegularPermit", "Approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("RegularPermit", "Approve", "payment_not_verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Applications.WithLabelValues("Renewal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentOutcomes.WithLabelValues("Verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("redis", "application.transitioned", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.OutboxBacklog))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransition("RegularPermit", "Approve", "ok", time.Now())
		m.IncApplicationsCreated("Renewal")
		m.IncPaymentOutcome("Verified")
		m.ObserveDelivery("log", event.TypeApplicationSubmitted, nil)
		m.SetOutboxBacklog(1)
		m.ObserveQueue(time.Now())
	})
}
