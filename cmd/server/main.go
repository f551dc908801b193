package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jam-carter/OrderOrchestrator/internal/cfg"
	"github.com/jam-carter/OrderOrchestrator/internal/health"
	"github.com/jam-carter/OrderOrchestrator/internal/httpmw"
	"github.com/jam-carter/OrderOrchestrator/internal/httpserver"
	"github.com/jam-carter/OrderOrchestrator/internal/lifecycle"
	"github.com/jam-carter/OrderOrchestrator/internal/log"
	"github.com/jam-carter/OrderOrchestrator/internal/metrics"
	"github.com/jam-carter/OrderOrchestrator/internal/opshttp"
	"github.com/jam-carter/OrderOrchestrator/internal/otelx"
	"github.com/jam-carter/OrderOrchestrator/internal/prof"
	"github.com/jam-carter/OrderOrchestrator/internal/ratelimit"
	"github.com/jam-carter/OrderOrchestrator/internal/secrets"
	"github.com/jam-carter/OrderOrchestrator/internal/xerrors"
	v "github.com/jam-carter/OrderOrchestrator/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		return 0
	}

	// dotenv first so its values are visible to FillFromEnv, never over real env
	if err := cfg.LoadEnvFile(conf.EnvFile); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}
	// no prefix: PORT, PG_HOST, RABBITMQ_URL ...
	cfg.FillFromEnv(flag.CommandLine, "", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 1
	}

	// Setup logging
	lvl, _ := log.ParseLevel(conf.LogLevel)
	lg, err := log.New(log.Options{
		App:        vi.AppName,
		Version:    vi.Version,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		return 1
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"port", conf.Port,
		"admin_port", conf.AdminPort,
		"enable_admin", conf.EnableAdmin,
		"enable_pprof", conf.EnablePprof,
		"enable_tracing", conf.EnableTracing,
		"enable_pyroscope", conf.EnablePyroscope,
		"pg_host", conf.Postgres.Host,
		"pg_port", conf.Postgres.Port,
		"pg_db", conf.Postgres.Database,
		"pg_password_from_ssm", conf.Postgres.PasswordSSMParam != "",
		"ready_rate", conf.ReadyRate,
		"ready_burst", conf.ReadyBurst,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion("server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       vi.AppName,
		Version:       vi.Version,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(err == nil && conf.EnablePyroscope)
	defer stopProf()

	// Insecure: the collector runs as a local agent
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  vi.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	var resolver secretResolver
	if conf.Postgres.PasswordSSMParam != "" {
		r, err := secrets.NewSSMResolver(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to set up secret resolver")
			return 1
		}
		resolver = r
	}
	probes, err := buildProbes(ctx, conf, resolver)
	if err != nil {
		L.Error(ctx, err, "invalid readiness probes")
		return 1
	}
	L.Info(ctx, "readiness probes registered",
		"dependencies", probes.Names(),
		"max_probe_timeout", probes.MaxTimeout().String(),
	)
	agg := health.NewAggregator(probes, health.WithObserver(m))

	lc := lifecycle.New()
	lc.OnChange(func(from, to lifecycle.State) {
		m.SetLifecycleState(to)
		L.Info(ctx, "lifecycle transition", "from", from.String(), "to", to.String(), "reason", lc.Reason())
	})

	var readyLimiter func(http.Handler) http.Handler
	if conf.ReadyRate > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.ReadyRate, conf.ReadyBurst),
			ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
			// once per client until it is evicted
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "readiness rate limit triggered", "client.address", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "readiness rate limit capacity reached, rejecting new clients until some are evicted")
			}),
		)
		readyLimiter = limiter.Middleware
	}

	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.Port,
		Liveness:     lc,
		Readiness:    agg,
		ReadyLimiter: readyLimiter,
		MetricsMW:    m.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener", "port", conf.Port)
		return 1
	}

	// admin listener: metrics and pprof only, never exposed publicly
	opsStop := func(context.Context) error { return nil }
	if conf.EnableAdmin {
		opsStop, err = opshttp.Start(ctx, opshttp.Options{
			Logger:      L,
			Port:        conf.AdminPort,
			Metrics:     m.Handler(),
			EnablePprof: conf.EnablePprof,
			OnPanic:     m.IncHttpPanic,
		})
		if err != nil {
			L.Error(ctx, err, "failed to start ops http listener", "admin_port", conf.AdminPort)
			_ = httpStop(context.Background())
			return 1
		}
	}

	lc.MarkServing()
	L.Info(ctx, "order-api up", "port", conf.Port)

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	// wait for ctrl+c / sigterm
	sig := <-sigCh
	bg := context.Background()
	L.Info(bg, "shutting down", "signal", sig.String())

	lc.Drain(sig.String())
	if conf.DrainDelay > 0 {
		L.Info(bg, "draining before closing listeners", "delay", conf.DrainDelay.String())
		select {
		case <-time.After(conf.DrainDelay):
		case <-sigCh:
			L.Warn(bg, "second signal received, skipping drain delay")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(bg, conf.ShutdownTimeout)
	defer cancel()

	code := 0
	if err := httpStop(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
		code = 1
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	lc.MarkStopped()
	L.Info(bg, "shutdown complete")
	return code
}

func notifySystemd() error {
	// set by systemd for Type=notify units
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return xerrors.New("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "systemd notify dial")
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "systemd notify write")
	}
	return nil
}
