package otelx

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false, Endpoint: "ignored:4317", Sample: 5})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// spans still get ids for log correlation and response headers
	_, span := otel.Tracer("test").Start(context.Background(), "probe postgres")
	defer span.End()
	if !span.SpanContext().IsValid() {
		t.Fatal("disabled tracing should still hand out valid span contexts")
	}
}

func TestInit_SetsPropagator(t *testing.T) {
	_, _ = Init(context.Background(), Options{})

	carrier := propagation.MapCarrier{"traceparent": "00-0102030405060708090a0b0c0d0e0f10-0102030405060708-01"}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	out := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, out)
	if out["traceparent"] != carrier["traceparent"] {
		t.Fatalf("traceparent = %q, want round trip", out["traceparent"])
	}
	fields := otel.GetTextMapPropagator().Fields()
	if len(fields) < 2 {
		t.Fatalf("fields = %v, want trace context and baggage", fields)
	}
}

func TestInit_EnabledRequiresEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), Options{Enabled: true}); err == nil {
		t.Fatal("expected error without an endpoint")
	}
}

func TestInit_EnabledReturnsPromptly(t *testing.T) {
	// the grpc exporter connects lazily; an unreachable collector must not block startup
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:  true,
		Endpoint: "127.0.0.1:1",
		Insecure: true,
		Sample:   1,
		Service:  "order-api",
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("Init took %s", time.Since(start))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)

	_, _ = Init(context.Background(), Options{})
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0: 0, 0.25: 0.25, 1: 1, 7: 1} {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v) = %v, want %v", in, got, want)
		}
	}
}
