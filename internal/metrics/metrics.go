// Package metrics exposes the process-wide counters and latency
// histograms named in §5: duplicate.*, atomic_update_failed.*,
// window_closed.*, template.*, plus webhook latency. Grounded on the
// teacher's internal/observability/metrics.MessagingMetrics shape.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/histogram family the spec requires.
// Access is safe for concurrent use: prometheus vectors already guard
// their own label-set maps internally, and the package-level default
// below is guarded by defaultMu for test reset/rebuild.
type Metrics struct {
	duplicateTotal          *prometheus.CounterVec
	atomicUpdateFailedTotal *prometheus.CounterVec
	windowClosedTotal       *prometheus.CounterVec
	templateTotal           *prometheus.CounterVec
	webhookLatency          *prometheus.HistogramVec
}

// New builds a Metrics bundle and registers it against reg. A nil
// Registerer falls back to prometheus.DefaultRegisterer, matching the
// teacher's NewMessagingMetrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		duplicateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingbot",
			Name:      "duplicate_total",
			Help:      "Inbound/webhook events rejected as duplicates, by source.",
		}, []string{"source"}),
		atomicUpdateFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingbot",
			Name:      "atomic_update_failed_total",
			Help:      "Optimistic repository updates that lost their race, by operation.",
		}, []string{"operation"}),
		windowClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingbot",
			Name:      "window_closed_total",
			Help:      "Messaging-window arbitration outcomes other than open, by intent and decision.",
		}, []string{"intent", "decision"}),
		templateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingbot",
			Name:      "template_total",
			Help:      "Template-backed sends, by template name.",
		}, []string{"template"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookingbot",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.duplicateTotal, m.atomicUpdateFailedTotal, m.windowClosedTotal, m.templateTotal, m.webhookLatency)
	return m
}

func (m *Metrics) Duplicate(source string) {
	if m == nil {
		return
	}
	m.duplicateTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) AtomicUpdateFailed(operation string) {
	if m == nil {
		return
	}
	m.atomicUpdateFailedTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) WindowClosed(intent, decision string) {
	if m == nil {
		return
	}
	m.windowClosedTotal.WithLabelValues(intent, decision).Inc()
}

func (m *Metrics) Template(name string) {
	if m == nil {
		return
	}
	m.templateTotal.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveWebhookLatency(route string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(route).Observe(seconds)
}

var (
	defaultMu  sync.Mutex
	defaultM   *Metrics
)

// Default returns the process-wide Metrics instance, building it
// against prometheus.DefaultRegisterer on first use.
func Default() *Metrics {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultM == nil {
		defaultM = New(prometheus.DefaultRegisterer)
	}
	return defaultM
}

// ResetDefault rebuilds the process-wide instance against a fresh
// registry, for test isolation between packages that call Default().
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultM = New(prometheus.NewRegistry())
}
