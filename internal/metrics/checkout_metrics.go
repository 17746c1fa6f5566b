package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины неудачного оформления для метки reason.
const (
	ReasonEmptyCart         = "empty_cart"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonInvalidArgument   = "invalid_argument"
	ReasonConflict          = "conflict"
	ReasonInternal          = "internal"
)

// CheckoutMetrics содержит метрики оформления и жизненного цикла заказов.
type CheckoutMetrics struct {
	checkoutStarted   prometheus.Counter
	checkoutCompleted prometheus.Counter
	checkoutFailed    *prometheus.CounterVec
	checkoutRetries   prometheus.Counter
	itemsSold         prometheus.Counter
	revenue           prometheus.Counter

	checkoutDuration prometheus.Histogram
	inFlight         prometheus.Gauge

	statusChanges  *prometheus.CounterVec
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewCheckoutMetrics регистрирует метрики в DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkoutStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_started_total",
			Help: "Total number of checkout attempts",
		}),
		checkoutCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_completed_total",
			Help: "Total number of checkouts that produced an order",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_failed_total",
			Help: "Total number of failed checkouts by reason",
		}, []string{"reason"}),
		checkoutRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_retries_total",
			Help: "Total number of checkout transactions retried after an order number conflict",
		}),
		itemsSold: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_items_total",
			Help: "Total number of product units sold through checkout",
		}),
		revenue: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_checkout_revenue_total",
			Help: "Total order value placed through checkout",
		}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_checkout_in_flight",
			Help: "Number of checkouts currently being processed",
		}),
		statusChanges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_order_status_changes_total",
			Help: "Total number of order status changes by target status",
		}, []string{"status"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
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

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// CheckoutStarted отмечает начало оформления.
func (m *CheckoutMetrics) CheckoutStarted() {
	m.checkoutStarted.Inc()
	m.inFlight.Inc()
}

// CheckoutFinished фиксирует длительность и уменьшает число активных оформлений.
func (m *CheckoutMetrics) CheckoutFinished(duration time.Duration) {
	m.inFlight.Dec()
	m.checkoutDuration.Observe(duration.Seconds())
}

// CheckoutCompleted учитывает успешное оформление: число единиц товара и сумму заказа.
func (m *CheckoutMetrics) CheckoutCompleted(items int64, total float64) {
	m.checkoutCompleted.Inc()
	m.itemsSold.Add(float64(items))
	m.revenue.Add(total)
}

// CheckoutFailed увеличивает счётчик неудач с указанной причиной.
func (m *CheckoutMetrics) CheckoutFailed(reason string) {
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

func (m *CheckoutMetrics) CheckoutRetried() {
	m.checkoutRetries.Inc()
}

// StatusChanged учитывает смену статуса заказа.
func (m *CheckoutMetrics) StatusChanged(to string) {
	m.statusChanges.WithLabelValues(to).Inc()
}

func (m *CheckoutMetrics) TimelineEvent() {
	m.timelineEvents.Inc()
}

func (m *CheckoutMetrics) OutboxEvent() {
	m.outboxEvents.Inc()
}
