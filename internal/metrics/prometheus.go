package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsManager holds the service's Prometheus collectors. A nil manager records nothing.
type MetricsManager struct {
	Registry             *prometheus.Registry
	BoostOrdersCreated   prometheus.Counter
	BoostActivations     prometheus.Counter
	BoostCancellations   prometheus.Counter
	BoostExpirations     prometheus.Counter
	BoostPaymentFailures *prometheus.CounterVec
	BoostPaymentLatency  prometheus.Histogram
	APIErrorsTotal       *prometheus.CounterVec
	ListingsCreatedTotal prometheus.Counter
	ActivitiesRecorded   prometheus.Counter
}

func NewMetricsManager(namespace string) *MetricsManager {
	registry := prometheus.NewRegistry()

	m := &MetricsManager{
		Registry: registry,
		BoostOrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boost_orders_created_total",
			Help:      "Total number of boost orders created.",
		}),
		BoostActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boost_activations_total",
			Help:      "Total number of boost orders activated.",
		}),
		BoostCancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boost_cancellations_total",
			Help:      "Total number of boost orders cancelled.",
		}),
		BoostExpirations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boost_expirations_total",
			Help:      "Total number of boost orders expired by a sweep.",
		}),
		BoostPaymentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boost_payment_failures_total",
			Help:      "Total number of failed boost payments by reason.",
		}, []string{"reason"}),
		BoostPaymentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "boost_payment_latency_seconds",
			Help:      "Latency of payment gateway charges.",
			Buckets:   prometheus.DefBuckets,
		}),
		APIErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_errors_total",
			Help:      "Total number of API errors by route and code.",
		}, []string{"route", "code"}),
		ListingsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_created_total",
			Help:      "Total number of listings created.",
		}),
		ActivitiesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_recorded_total",
			Help:      "Total number of activity feed entries recorded.",
		}),
	}

	registry.MustRegister(
		m.BoostOrdersCreated,
		m.BoostActivations,
		m.BoostCancellations,
		m.BoostExpirations,
		m.BoostPaymentFailures,
		m.BoostPaymentLatency,
		m.APIErrorsTotal,
		m.ListingsCreatedTotal,
		m.ActivitiesRecorded,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

func (m *MetricsManager) OrderCreated() {
	if m != nil {
		m.BoostOrdersCreated.Inc()
	}
}

func (m *MetricsManager) OrderActivated() {
	if m != nil {
		m.BoostActivations.Inc()
	}
}

func (m *MetricsManager) OrderCancelled() {
	if m != nil {
		m.BoostCancellations.Inc()
	}
}

func (m *MetricsManager) OrdersExpired(n int) {
	if m != nil && n > 0 {
		m.BoostExpirations.Add(float64(n))
	}
}

func (m *MetricsManager) PaymentFailed(reason string) {
	if m != nil {
		m.BoostPaymentFailures.WithLabelValues(reason).Inc()
	}
}

func (m *MetricsManager) ObservePayment(d time.Duration) {
	if m != nil {
		m.BoostPaymentLatency.Observe(d.Seconds())
	}
}

func (m *MetricsManager) APIError(route, code string) {
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(route, code).Inc()
	}
}

func (m *MetricsManager) ListingCreated() {
	if m != nil {
		m.ListingsCreatedTotal.Inc()
	}
}

func (m *MetricsManager) ActivityRecorded() {
	if m != nil {
		m.ActivitiesRecorded.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *MetricsManager) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
