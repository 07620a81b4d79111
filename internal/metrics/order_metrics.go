package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// Результат операции для лейбла result.
const (
	ResultOK = "ok"
)

// OrderMetrics содержит метрики операций над агрегатом заказа.
type OrderMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge

	lifecycleEvents *prometheus.CounterVec
	outboxEnqueued  prometheus.Counter
}

// NewOrderMetrics создаёт метрики в DefaultRegisterer.
// Повторный вызов возвращает уже зарегистрированные коллекторы.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в заданном реестре (удобно в тестах).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_order_operations_total",
			Help: "Total number of order aggregate operations by result",
		}, []string{"op", "result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pos_order_operation_duration_seconds",
			Help:    "Duration of order aggregate operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"op"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pos_order_operations_in_flight",
			Help: "Number of order aggregate operations currently running",
		}),
		lifecycleEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_order_lifecycle_events_total",
			Help: "Total number of published order lifecycle events by kind",
		}, []string{"kind"}),
		outboxEnqueued: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_order_outbox_enqueued_total",
			Help: "Total number of order events written to the outbox",
		}),
	}
}

// Start отмечает начало операции и возвращает функцию завершения,
// которая записывает длительность и результат.
func (m *OrderMetrics) Start(op string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	started := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		m.ObserveOperation(op, err, time.Since(started))
	}
}

// ObserveOperation записывает результат и длительность операции.
func (m *OrderMetrics) ObserveOperation(op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.duration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLifecycleEvent увеличивает счётчик опубликованных событий.
func (m *OrderMetrics) RecordLifecycleEvent(kind domain.EventKind) {
	if m == nil {
		return
	}
	m.lifecycleEvents.WithLabelValues(string(kind)).Inc()
}

// RecordOutboxEnqueued увеличивает счётчик событий, записанных в outbox.
func (m *OrderMetrics) RecordOutboxEnqueued() {
	if m == nil {
		return
	}
	m.outboxEnqueued.Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return ResultOK
	}
	return string(domain.KindOf(err))
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
