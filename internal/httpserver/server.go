package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jam-carter/OrderOrchestrator/internal/health"
	"github.com/jam-carter/OrderOrchestrator/internal/httpmw"
	"github.com/jam-carter/OrderOrchestrator/internal/log"
	"github.com/jam-carter/OrderOrchestrator/internal/xerrors"
)

const (
	HealthzPath = "/healthz"
	ReadyzPath  = "/readyz"

	maxRequestBody = 1024
)

// NewHandler builds the public handler: routes plus middleware.
// main() owns the server lifecycle through Start.
func NewHandler(opts *Options) http.Handler {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}

	r := chi.NewRouter()

	// rename span and logger fields after the route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// orchestrator polling would drown everything else at info
	r.Use(httpmw.AccessLog(HealthzPath, ReadyzPath))

	r.Use(httpmw.MaxBody(maxRequestBody))

	r.Get(HealthzPath, health.HealthzHandler(opts.Liveness))
	if opts.Readiness != nil {
		ready := r.With()
		if opts.ReadyLimiter != nil {
			ready = r.With(opts.ReadyLimiter)
		}
		ready.Get(ReadyzPath, health.ReadyzHandler(opts.Readiness))
	}

	r.NotFound(jsonStatus(http.StatusNotFound))
	r.MethodNotAllowed(jsonStatus(http.StatusMethodNotAllowed))

	var recoverMW httpmw.Middleware
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}

	// outermost first
	return httpmw.Chain(r,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
		// before the limiter (inside chi) and the logger
		httpmw.ClientIP(opts.ClientIPOpts),
		tracing,
		httpmw.TraceResponseHeaders,
		opts.MetricsMW,
		// inner so it sees trace_id and the client address
		httpmw.WithLogger(L),
	)
}

func tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// liveness is polled constantly and touches nothing; readiness
			// keeps its probe spans
			return r.URL.Path != HealthzPath
		}),
		// AnnotateHTTPRoute renames the span once chi has matched
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func jsonStatus(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"status":"error"}` + "\n"))
	}
}

// Server timeout defaults, shared with opshttp. The public server raises
// WriteTimeout when a probe timeout would not fit under it.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20

	// room left after the slowest probe to encode and write the report
	readyzWriteMargin = 5 * time.Second
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Serve binds addr and serves srv in the background. The bind happens before
// returning so callers can fail startup on it. The returned stop drains
// in-flight requests until sctx expires, then force-closes.
func Serve(ctx context.Context, L log.Logger, name string, srv *http.Server) (func(context.Context) error, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%s listen on %s", name, srv.Addr)
	}

	go func() {
		L.Info(ctx, name+" listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L.Error(ctx, err, name+" error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, name+" shutting down")
			if err := srv.Shutdown(sctx); err != nil {
				_ = srv.Close()
				retErr = xerrors.Wrapf(err, "%s shutdown", name)
			}
		})
		return retErr
	}
	return stop, nil
}

// Start the public HTTP server.
// Returns stop(ctx) for graceful shutdown.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	return Serve(ctx, L, "http server", newPublicServer(port, opts))
}

func newPublicServer(port int, opts *Options) *http.Server {
	srv := NewServer(fmt.Sprintf(":%d", port), NewHandler(opts))
	srv.WriteTimeout = writeTimeout(opts.Readiness)
	return srv
}

// writeTimeout keeps a /readyz response writable after the slowest probe has
// given up, so a hung dependency still yields the per-dependency report.
func writeTimeout(agg *health.Aggregator) time.Duration {
	return max(DefaultWriteTimeout, agg.MaxTimeout()+readyzWriteMargin)
}
