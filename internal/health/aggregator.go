package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jam-carter/OrderOrchestrator/internal/log"
)

var (
	// ErrNoProbeSet means there is no set to run.
	ErrNoProbeSet = errors.New("health: no probe set configured")
	// ErrAbandoned means the caller's context ended before the probes did,
	// typically a client that hung up mid-request. No verdict is recorded.
	ErrAbandoned = errors.New("health: readiness evaluation abandoned")
)

// Observer receives probe and readiness outcomes, typically for metrics.
type Observer interface {
	ObserveProbe(name string, status Status, d time.Duration)
	ObserveReadiness(status Status)
}

type Aggregator struct {
	set      *Set
	observer Observer
	tracer   trace.Tracer
}

type Option func(*Aggregator)

// WithObserver attaches an observer; nil is ignored.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithTracer overrides the tracer used for per-probe spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) {
		if t != nil {
			a.tracer = t
		}
	}
}

func NewAggregator(set *Set, opts ...Option) *Aggregator {
	a := &Aggregator{
		set:    set,
		tracer: otel.Tracer("order-api/health"),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Evaluate runs every probe of the set concurrently and waits for all of
// them. Total latency is bounded by the longest probe timeout. Each call
// probes afresh. If ctx ends first the partial outcome is discarded and
// ErrAbandoned is returned.
func (a *Aggregator) Evaluate(ctx context.Context) (Report, error) {
	if a == nil || a.set == nil {
		return Report{}, ErrNoProbeSet
	}
	specs := a.set.specs

	// one slot per probe, each written by exactly one goroutine
	results := make([]Result, len(specs))
	var g errgroup.Group
	for i, s := range specs {
		g.Go(func() error {
			results[i] = a.run(ctx, s)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrAbandoned, err)
	}

	report := Summarize(results)
	if a.observer != nil {
		a.observer.ObserveReadiness(report.Status)
	}
	return report, nil
}

// MaxTimeout is the longest probe timeout of the set, the upper bound on how
// long Evaluate runs. Zero without a set.
func (a *Aggregator) MaxTimeout() time.Duration {
	if a == nil || a.set == nil {
		return 0
	}
	return a.set.MaxTimeout()
}

func (a *Aggregator) run(ctx context.Context, s Spec) Result {
	ctx, span := a.tracer.Start(ctx, "probe "+s.Name,
		trace.WithAttributes(
			attribute.String("dependency", s.Name),
			attribute.String("probe.timeout", s.Timeout.String()),
		),
	)
	defer span.End()

	res := s.Run(ctx)

	span.SetAttributes(attribute.String("probe.status", res.Status.String()))
	if ctx.Err() != nil {
		// the caller left; this Down says nothing about the dependency
		span.SetStatus(codes.Error, "abandoned")
		log.FromContext(ctx).Debug(ctx, "dependency probe abandoned",
			"dependency", res.Name,
			"duration_ms", res.Duration.Milliseconds(),
		)
		return res
	}
	if res.Status != Up {
		span.SetStatus(codes.Error, res.Detail)
		log.FromContext(ctx).Warn(ctx, "dependency probe failed",
			"dependency", res.Name,
			"detail", res.Detail,
			"duration_ms", res.Duration.Milliseconds(),
		)
	} else {
		log.FromContext(ctx).Debug(ctx, "dependency probe ok",
			"dependency", res.Name,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	if a.observer != nil {
		a.observer.ObserveProbe(res.Name, res.Status, res.Duration)
	}
	return res
}
