// Package metrics exposes Prometheus counters for the alert pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "listing_alert_bot"

// Metrics owns its registry so tests and multiple instances never collide on
// the global one. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal        prometheus.Counter
	CycleDuration      prometheus.Histogram
	ListingsSeen       prometheus.Counter
	CandidatesAccepted prometheus.Counter
	Rejections         *prometheus.CounterVec
	UpstreamRetries    *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	LastCycle          prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Total number of completed poll cycles",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds, including upstream retries",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		ListingsSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "entries_seen_total",
			Help:      "Total number of raw listing entries received",
		}),
		CandidatesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "candidates_accepted_total",
			Help:      "Total number of entries that became candidates",
		}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "rejections_total",
			Help:      "Total number of rejected entries by reason",
		}, []string{"reason"}),
		UpstreamRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "upstream_retries_total",
			Help:      "Total number of listing request retries by reason",
		}, []string{"reason"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "messages_total",
			Help:      "Total number of notification attempts by status",
		}, []string{"status"}),
		LastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last completed poll cycle",
		}),
	}
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(started, finished time.Time) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(finished.Sub(started).Seconds())
	m.LastCycle.Set(float64(finished.Unix()))
}

func (m *Metrics) AddListings(n int) {
	if m == nil {
		return
	}
	m.ListingsSeen.Add(float64(n))
}

func (m *Metrics) Accept() {
	if m == nil {
		return
	}
	m.CandidatesAccepted.Inc()
}

func (m *Metrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Retry(reason string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) Notification(delivered bool) {
	if m == nil {
		return
	}
	status := "failed"
	if delivered {
		status = "sent"
	}
	m.Notifications.WithLabelValues(status).Inc()
}
