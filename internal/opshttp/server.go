package opshttp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jam-carter/OrderOrchestrator/internal/httpmw"
	"github.com/jam-carter/OrderOrchestrator/internal/httpserver"
	"github.com/jam-carter/OrderOrchestrator/internal/log"
)

// NewHandler serves /metrics and, when enabled, pprof. Health endpoints live
// on the public port only.
func NewHandler(opts Options) http.Handler {
	mux := http.NewServeMux()

	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}

	// pprof (or shadow with 404s)
	if opts.EnablePprof {
		RegisterPprof(mux)
	} else {
		mux.HandleFunc("/debug/pprof/", http.NotFound)
	}

	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	return httpmw.Recover(L, opts.OnPanic)(mux)
}

// Start the admin HTTP server.
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts Options) (func(context.Context) error, error) {
	L := opts.Logger
	if L == nil {
		L = log.Nop()
	}
	port := opts.Port
	if port == 0 {
		port = 9000
	}
	srv := httpserver.NewServer(fmt.Sprintf(":%d", port), NewHandler(opts))
	// profiles stream for longer than the public write timeout
	if opts.EnablePprof {
		srv.WriteTimeout = 0
	}
	return httpserver.Serve(ctx, L, "ops http server", srv)
}
