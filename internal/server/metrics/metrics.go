// Package metrics собирает prometheus-метрики сервера
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics хранит счетчики и гистограммы сервера
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	MutationsTotal     *prometheus.CounterVec
	SubscribersActive  prometheus.Gauge
	EventsPublished    prometheus.Counter
	SubscribersDropped prometheus.Counter
	PushDeliveries     *prometheus.CounterVec
}

// New создает и регистрирует метрики.
// reg == nil — собственный изолированный registry (удобно в тестах).
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncvault_http_requests_total",
			Help: "Total HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syncvault_http_request_duration_seconds",
			Help:    "HTTP request handling latency.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"route"}),
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncvault_mutations_total",
			Help: "Record mutations by outcome (accepted/rejected).",
		}, []string{"outcome"}),
		SubscribersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "syncvault_subscribers_active",
			Help: "Current number of websocket subscribers.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncvault_events_published_total",
			Help: "Change event batches published to subscribers.",
		}),
		SubscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "syncvault_subscribers_dropped_total",
			Help: "Subscribers dropped for not keeping up with events.",
		}),
		PushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "syncvault_push_deliveries_total",
			Help: "Push notification deliveries by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.MutationsTotal,
		m.SubscribersActive,
		m.EventsPublished,
		m.SubscribersDropped,
		m.PushDeliveries,
	)

	return m
}

// Handler возвращает HTTP handler для /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
