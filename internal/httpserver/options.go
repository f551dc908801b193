package httpserver

import (
	"net/http"

	"github.com/jam-carter/OrderOrchestrator/internal/health"
	"github.com/jam-carter/OrderOrchestrator/internal/httpmw"
	"github.com/jam-carter/OrderOrchestrator/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Liveness backs /healthz; nil is always live.
	Liveness health.Liveness
	// Readiness backs /readyz; the route is not registered when nil.
	Readiness *health.Aggregator

	// ReadyLimiter wraps only /readyz, since every call opens fresh
	// dependency connections.
	ReadyLimiter func(http.Handler) http.Handler
	MetricsMW    func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	UseRecoverMW bool
	OnPanic      func()
}
