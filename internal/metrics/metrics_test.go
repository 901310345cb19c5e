package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Duplicate("stripe")
	m.AtomicUpdateFailed("advance_step_if_at")
	m.WindowClosed("qualifying_question", "closed_template_used")
	m.Template("deposit_received")
	m.ObserveWebhookLatency("inbound", 0.25)
}

func TestMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Duplicate("whatsapp")
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Duplicate("stripe")
	m.AtomicUpdateFailed("op")
	m.WindowClosed("intent", "decision")
	m.Template("name")
	m.ObserveWebhookLatency("route", 0.1)
}

func TestDefaultResettable(t *testing.T) {
	ResetDefault()
	first := Default()
	first.Duplicate("stripe")

	ResetDefault()
	second := Default()
	if second == first {
		t.Fatalf("expected ResetDefault to rebuild the instance")
	}
}
