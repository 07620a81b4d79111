package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveOperation_LabelsByErrorKind(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.ObserveOperation("create", nil, 10*time.Millisecond)
	m.ObserveOperation("create", domain.NewNotFound(domain.EntityProduct, "p"), time.Millisecond)
	m.ObserveOperation("create", domain.Internal("op", errors.New("db down")), time.Millisecond)

	if got := counterValue(t, m.operations.WithLabelValues("create", ResultOK)); got != 1 {
		t.Fatalf("expected 1 ok, got %v", got)
	}
	if got := counterValue(t, m.operations.WithLabelValues("create", string(domain.KindNotFound))); got != 1 {
		t.Fatalf("expected 1 not_found, got %v", got)
	}
	if got := counterValue(t, m.operations.WithLabelValues("create", string(domain.KindInternal))); got != 1 {
		t.Fatalf("expected 1 internal, got %v", got)
	}
}

func TestStart_TracksInFlightAndDuration(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	done := m.Start("update")

	var gauge dto.Metric
	if err := m.inFlight.Write(&gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.GetGauge().GetValue() != 1 {
		t.Fatalf("expected 1 in flight, got %v", gauge.GetGauge().GetValue())
	}

	done(nil)

	if err := m.inFlight.Write(&gauge); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	if gauge.GetGauge().GetValue() != 0 {
		t.Fatalf("expected 0 in flight, got %v", gauge.GetGauge().GetValue())
	}

	var hist dto.Metric
	observer := m.duration.WithLabelValues("update").(prometheus.Histogram)
	if err := observer.Write(&hist); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if hist.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected 1 duration sample, got %d", hist.GetHistogram().GetSampleCount())
	}
}

func TestRecordLifecycleAndOutbox(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordLifecycleEvent(domain.EventOrderCreated)
	m.RecordLifecycleEvent(domain.EventOrderCreated)
	m.RecordLifecycleEvent(domain.EventOrderDeleted)
	m.RecordOutboxEnqueued()

	if got := counterValue(t, m.lifecycleEvents.WithLabelValues(string(domain.EventOrderCreated))); got != 2 {
		t.Fatalf("expected 2 created events, got %v", got)
	}
	if got := counterValue(t, m.lifecycleEvents.WithLabelValues(string(domain.EventOrderDeleted))); got != 1 {
		t.Fatalf("expected 1 deleted event, got %v", got)
	}
	if got := counterValue(t, m.outboxEnqueued); got != 1 {
		t.Fatalf("expected 1 outbox event, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *OrderMetrics

	m.Start("create")(nil)
	m.ObserveOperation("create", nil, time.Millisecond)
	m.RecordLifecycleEvent(domain.EventOrderUpdated)
	m.RecordOutboxEnqueued()
}

func TestRegisterTwiceReturnsExistingCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(registry)
	second := NewOrderMetricsWithRegisterer(registry)

	first.RecordOutboxEnqueued()
	if got := counterValue(t, second.outboxEnqueued); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}
