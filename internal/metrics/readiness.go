package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jam-carter/OrderOrchestrator/internal/health"
	"github.com/jam-carter/OrderOrchestrator/internal/lifecycle"
)

// readiness holds the series fed by the health aggregator and the lifecycle
// machine. Dependency names come from the fixed probe set, so the label space
// stays bounded.
type readiness struct {
	probeDur       *prometheus.HistogramVec
	dependencyUp   *prometheus.GaugeVec
	checksTotal    *prometheus.CounterVec
	lifecycleState *prometheus.GaugeVec
}

func newReadiness() readiness {
	return readiness{
		probeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "readiness_probe_duration_seconds",
			Help:    "Dependency probe latency by dependency and outcome",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"dependency", "status"}),
		dependencyUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "readiness_dependency_up",
			Help: "Outcome of the most recent probe per dependency (1 up, 0 down)",
		}, []string{"dependency"}),
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "readiness_checks_total",
			Help: "Total readiness evaluations by overall status",
		}, []string{"status"}),
		lifecycleState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lifecycle_state",
			Help: "Current process lifecycle phase (1 for the active state)",
		}, []string{"state"}),
	}
}

func (r readiness) register(reg prometheus.Registerer) {
	reg.MustRegister(r.probeDur, r.dependencyUp, r.checksTotal, r.lifecycleState)
}

// ObserveProbe implements health.Observer.
func (m *ServerMetrics) ObserveProbe(name string, status health.Status, d time.Duration) {
	m.probeDur.WithLabelValues(name, status.String()).Observe(d.Seconds())
	up := 0.0
	if status == health.Up {
		up = 1
	}
	m.dependencyUp.WithLabelValues(name).Set(up)
}

// ObserveReadiness implements health.Observer.
func (m *ServerMetrics) ObserveReadiness(status health.Status) {
	m.checksTotal.WithLabelValues(status.String()).Inc()
}

// SetLifecycleState marks s as the active phase, every other phase as 0.
func (m *ServerMetrics) SetLifecycleState(s lifecycle.State) {
	for st := lifecycle.Starting; st <= lifecycle.Stopped; st++ {
		v := 0.0
		if st == s {
			v = 1
		}
		m.lifecycleState.WithLabelValues(st.String()).Set(v)
	}
}
