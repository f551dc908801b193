package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jam-carter/OrderOrchestrator/internal/health"
	"github.com/jam-carter/OrderOrchestrator/internal/version"
)

// helpers

func gatherMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func firstMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.Metric {
	t.Helper()
	f := gatherMetric(t, reg, name)
	if f == nil || len(f.GetMetric()) == 0 {
		t.Fatalf("metric %q has no samples", name)
	}
	return f.GetMetric()[0]
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return firstMetric(t, reg, name).GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return firstMetric(t, reg, name).GetGauge().GetValue()
}

func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	return firstMetric(t, reg, name).GetHistogram().GetSampleCount()
}

func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	b, _ := io.ReadAll(rec.Body)
	return string(b)
}

// New

func TestNew_RegistersRuntimeAndServiceMetrics(t *testing.T) {
	m := New()
	for _, name := range []string{
		"go_goroutines",
		"process_cpu_seconds_total",
		"http_inflight_requests",
		"http_panic_total",
		"readiness_rate_limited_total",
		"profiling_active",
		"lifecycle_state",
	} {
		if gatherMetric(t, m.reg, name) == nil {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestNew_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncHttpPanic()
	if got := counterValue(t, b.reg, "http_panic_total"); got != 0 {
		t.Fatalf("second registry saw %v panics", got)
	}
}

func TestNew_StartsInStartingState(t *testing.T) {
	m := New()
	for _, metric := range gatherMetric(t, m.reg, "lifecycle_state").GetMetric() {
		want := 0.0
		if labelsOf(metric.GetLabel())["state"] == "starting" {
			want = 1
		}
		if metric.GetGauge().GetValue() != want {
			t.Errorf("lifecycle_state%v = %v, want %v", labelsOf(metric.GetLabel()), metric.GetGauge().GetValue(), want)
		}
	}
}

// Handler

func TestHandler_ServesExposition(t *testing.T) {
	m := New()
	m.ObserveReadiness(health.Up)
	body := scrape(t, m)
	for _, want := range []string{"# HELP readiness_checks_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

// Counters and gauges

func TestCounters(t *testing.T) {
	m := New()
	m.IncHttpPanic()
	m.IncRateLimitDenied()
	m.IncRateLimitDenied()
	m.IncRateLimitCapacity()

	if got := counterValue(t, m.reg, "http_panic_total"); got != 1 {
		t.Errorf("http_panic_total = %v", got)
	}
	if got := counterValue(t, m.reg, "readiness_rate_limited_total"); got != 2 {
		t.Errorf("readiness_rate_limited_total = %v", got)
	}
	if got := counterValue(t, m.reg, "readiness_rate_limit_capacity_total"); got != 1 {
		t.Errorf("readiness_rate_limit_capacity_total = %v", got)
	}
}

func TestSetProfilingActive(t *testing.T) {
	m := New()
	m.SetProfilingActive(true)
	if got := gaugeValue(t, m.reg, "profiling_active"); got != 1 {
		t.Fatalf("profiling_active = %v, want 1", got)
	}
	m.SetProfilingActive(false)
	if got := gaugeValue(t, m.reg, "profiling_active"); got != 0 {
		t.Fatalf("profiling_active = %v, want 0", got)
	}
}

// Build info

func TestSetBuildInfoFromVersion(t *testing.T) {
	dirty := true
	m := New()
	m.SetBuildInfoFromVersion("server", version.Info{
		AppName:   "order-api",
		Version:   "1.4.0",
		Commit:    "abc123",
		BuildId:   "b-7",
		GoVersion: "go1.24.11",
		VCSDirty:  &dirty,
	})

	metric := firstMetric(t, m.reg, "build_info")
	if metric.GetGauge().GetValue() != 1 {
		t.Fatalf("build_info = %v, want 1", metric.GetGauge().GetValue())
	}
	labels := labelsOf(metric.GetLabel())
	want := map[string]string{
		"app":        "order-api",
		"component":  "server",
		"version":    "1.4.0",
		"commit":     "abc123",
		"build_id":   "b-7",
		"go_version": "go1.24.11",
		"vcs_dirty":  "true",
	}
	for k, v := range want {
		if labels[k] != v {
			t.Errorf("label %s = %q, want %q", k, labels[k], v)
		}
	}
}

func TestSetBuildInfoFromVersion_UnknownDirty(t *testing.T) {
	m := New()
	m.SetBuildInfoFromVersion("server", version.Info{AppName: "order-api"})
	if got := labelsOf(firstMetric(t, m.reg, "build_info").GetLabel())["vcs_dirty"]; got != "unknown" {
		t.Fatalf("vcs_dirty = %q, want unknown", got)
	}
}
