package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для label `result`.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// MarketplaceMetrics содержит метрики корзины, оформления заказов и исполнения позиций.
type MarketplaceMetrics struct {
	// Корзина
	cartMutations *prometheus.CounterVec
	cartAdjusted  *prometheus.CounterVec

	// Оформление заказа
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	stockDecremented prometheus.Counter
	orderValue       prometheus.Histogram

	// Исполнение
	itemTransitions *prometheus.CounterVec
	orderStatuses   *prometheus.CounterVec

	// События timeline/outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Идемпотентное оформление
	checkoutKeys  *prometheus.CounterVec
	attemptsSwept *prometheus.CounterVec
	attemptSweeps *prometheus.CounterVec
}

// NewMarketplaceMetrics создаёт метрики в DefaultRegisterer.
func NewMarketplaceMetrics() *MarketplaceMetrics {
	return NewMarketplaceMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMarketplaceMetricsWithRegisterer создаёт метрики в заданном registry (удобно для тестов).
func NewMarketplaceMetricsWithRegisterer(registerer prometheus.Registerer) *MarketplaceMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &MarketplaceMetrics{
		cartMutations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_cart_mutations_total",
			Help: "Total number of cart mutations grouped by operation and result",
		}, []string{"operation", "result"}),
		cartAdjusted: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_cart_adjustments_total",
			Help: "Total number of cart lines adjusted during reconcile grouped by kind",
		}, []string{"kind"}),
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkouts_total",
			Help: "Total number of checkout attempts grouped by result and reason",
		}, []string{"result", "reason"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_checkout_duration_seconds",
			Help:    "Duration of the checkout transaction in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		stockDecremented: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_stock_decremented_units_total",
			Help: "Total number of stock units decremented by committed orders",
		}),
		orderValue: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_order_total_minor",
			Help:    "Committed order totals in minor currency units",
			Buckets: prometheus.ExponentialBuckets(100, 4, 10),
		}),
		itemTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_item_status_transitions_total",
			Help: "Total number of order item status transitions grouped by target status",
		}, []string{"to"}),
		orderStatuses: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_order_status_changes_total",
			Help: "Total number of aggregate order status changes grouped by target status",
		}, []string{"to"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "marketplace_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		checkoutKeys: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkout_idempotency_total",
			Help: "Checkout requests carrying an Idempotency-Key grouped by outcome",
		}, []string{"outcome"}),
		attemptsSwept: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkout_attempts_swept_total",
			Help: "Checkout attempts removed by the sweeper grouped by kind (expired, stale)",
		}, []string{"kind"}),
		attemptSweeps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkout_attempt_sweeps_total",
			Help: "Checkout attempt sweeper runs grouped by result",
		}, []string{"result"}),
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

// RecordCartMutation учитывает изменение корзины.
func (m *MarketplaceMetrics) RecordCartMutation(operation, result string) {
	m.cartMutations.WithLabelValues(operation, result).Inc()
}

// RecordCartAdjustment учитывает корректировку строки корзины при сверке.
func (m *MarketplaceMetrics) RecordCartAdjustment(kind string) {
	m.cartAdjusted.WithLabelValues(kind).Inc()
}

// RecordCheckout учитывает попытку оформления и её длительность.
func (m *MarketplaceMetrics) RecordCheckout(result, reason string, duration time.Duration) {
	m.checkouts.WithLabelValues(result, reason).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordOrderCommitted учитывает списанные единицы и сумму оформленного заказа.
func (m *MarketplaceMetrics) RecordOrderCommitted(units int, totalMinor int64) {
	m.stockDecremented.Add(float64(units))
	m.orderValue.Observe(float64(totalMinor))
}

// RecordItemTransition учитывает смену статуса позиции.
func (m *MarketplaceMetrics) RecordItemTransition(to string) {
	m.itemTransitions.WithLabelValues(to).Inc()
}

// RecordOrderStatusChange учитывает смену агрегированного статуса заказа.
func (m *MarketplaceMetrics) RecordOrderStatusChange(to string) {
	m.orderStatuses.WithLabelValues(to).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *MarketplaceMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *MarketplaceMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordCheckoutKey учитывает исход запроса оформления с Idempotency-Key.
func (m *MarketplaceMetrics) RecordCheckoutKey(outcome string) {
	m.checkoutKeys.WithLabelValues(outcome).Inc()
}

// RecordAttemptsSwept учитывает удалённые попытки оформления.
func (m *MarketplaceMetrics) RecordAttemptsSwept(kind string, count int) {
	if count > 0 {
		m.attemptsSwept.WithLabelValues(kind).Add(float64(count))
	}
}

// RecordAttemptSweep учитывает прогон очистки попыток.
func (m *MarketplaceMetrics) RecordAttemptSweep(result string) {
	m.attemptSweeps.WithLabelValues(result).Inc()
}
