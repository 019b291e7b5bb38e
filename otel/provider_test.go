package otel_test

import (
	"context"
	"testing"

	otelapi "go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	rosterotel "github.com/quay-labs/rosterd/otel"
)

func TestSetupEmptyEndpointIsNoop(t *testing.T) {
	before := otelapi.GetTracerProvider()

	shutdown, err := rosterotel.Setup(context.Background(), "   ", "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if otelapi.GetTracerProvider() != before {
		t.Fatal("empty endpoint must not replace the global tracer provider")
	}
}

func TestSetupInstallsBothProviders(t *testing.T) {
	prevTracer := otelapi.GetTracerProvider()
	prevMeter := otelapi.GetMeterProvider()
	t.Cleanup(func() {
		otelapi.SetTracerProvider(prevTracer)
		otelapi.SetMeterProvider(prevMeter)
	})

	shutdown, err := rosterotel.Setup(context.Background(), "localhost:4318", "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if _, ok := otelapi.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("tracer provider = %T, want SDK provider", otelapi.GetTracerProvider())
	}
	if _, ok := otelapi.GetMeterProvider().(*sdkmetric.MeterProvider); !ok {
		t.Fatalf("meter provider = %T, want SDK provider", otelapi.GetMeterProvider())
	}

	// No collector is listening; shutdown may fail to flush, it just must
	// not hang past the deadline.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
