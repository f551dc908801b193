package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/jam-carter/OrderOrchestrator/internal/health"
	"github.com/jam-carter/OrderOrchestrator/internal/lifecycle"
)

func labelsOf(pairs []*dto.LabelPair) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, lp := range pairs {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

// ObserveProbe

func TestObserveProbe(t *testing.T) {
	m := New()
	m.ObserveProbe("postgres", health.Up, 12*time.Millisecond)
	m.ObserveProbe("postgres", health.Up, 8*time.Millisecond)
	m.ObserveProbe("rabbitmq", health.Down, time.Second)

	f := gatherMetric(t, m.reg, "readiness_probe_duration_seconds")
	if f == nil {
		t.Fatal("readiness_probe_duration_seconds not found")
	}
	if len(f.GetMetric()) != 2 {
		t.Fatalf("series = %d, want 2", len(f.GetMetric()))
	}
	for _, metric := range f.GetMetric() {
		l := labelsOf(metric.GetLabel())
		switch l["dependency"] {
		case "postgres":
			if l["status"] != "up" || metric.GetHistogram().GetSampleCount() != 2 {
				t.Fatalf("postgres series = %v count=%d", l, metric.GetHistogram().GetSampleCount())
			}
		case "rabbitmq":
			if l["status"] != "down" || metric.GetHistogram().GetSampleCount() != 1 {
				t.Fatalf("rabbitmq series = %v count=%d", l, metric.GetHistogram().GetSampleCount())
			}
		default:
			t.Fatalf("unexpected dependency label %q", l["dependency"])
		}
	}
}

func TestObserveProbe_DependencyUpGauge(t *testing.T) {
	m := New()
	m.ObserveProbe("rabbitmq", health.Up, time.Millisecond)
	m.ObserveProbe("rabbitmq", health.Down, time.Millisecond)

	f := gatherMetric(t, m.reg, "readiness_dependency_up")
	if f == nil {
		t.Fatal("readiness_dependency_up not found")
	}
	if got := f.GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Fatalf("rabbitmq up = %f, want 0 after a down probe", got)
	}
}

// ObserveReadiness

func TestObserveReadiness(t *testing.T) {
	m := New()
	m.ObserveReadiness(health.Up)
	m.ObserveReadiness(health.Down)
	m.ObserveReadiness(health.Down)

	f := gatherMetric(t, m.reg, "readiness_checks_total")
	if f == nil {
		t.Fatal("readiness_checks_total not found")
	}
	got := map[string]float64{}
	for _, metric := range f.GetMetric() {
		got[labelsOf(metric.GetLabel())["status"]] = metric.GetCounter().GetValue()
	}
	if got["up"] != 1 || got["down"] != 2 {
		t.Fatalf("readiness_checks_total = %v", got)
	}
}

// SetLifecycleState

func TestSetLifecycleState(t *testing.T) {
	m := New()

	state := func() map[string]float64 {
		f := gatherMetric(t, m.reg, "lifecycle_state")
		if f == nil {
			t.Fatal("lifecycle_state not found")
		}
		out := map[string]float64{}
		for _, metric := range f.GetMetric() {
			out[labelsOf(metric.GetLabel())["state"]] = metric.GetGauge().GetValue()
		}
		return out
	}

	if s := state(); s["starting"] != 1 || s["serving"] != 0 {
		t.Fatalf("initial = %v, want starting", s)
	}

	m.SetLifecycleState(lifecycle.Draining)
	s := state()
	if len(s) != 4 {
		t.Fatalf("series = %d, want 4", len(s))
	}
	if s["draining"] != 1 || s["starting"] != 0 || s["serving"] != 0 || s["stopped"] != 0 {
		t.Fatalf("after drain = %v", s)
	}
}
