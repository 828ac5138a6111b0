package tracing

import (
	"context"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitWithoutEndpointIsANoop(t *testing.T) {
	shutdown, err := Init("test-service", "")
	if err != nil {
		t.Fatalf("Init should not error without an endpoint: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function should not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown should not error: %v", err)
	}
}

func TestInitWithEndpointBuildsExporter(t *testing.T) {
	shutdown, err := Init("test-service", "localhost:14318")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function should not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Logf("shutdown error (acceptable, no live collector in tests): %v", err)
	}

	tracer = nil
	otel.SetTracerProvider(nil)
}

func TestGetVersionDefaultsToDev(t *testing.T) {
	os.Unsetenv("SERVICE_VERSION")
	if v := getVersion(); v != "dev" {
		t.Errorf("expected default version 'dev', got %s", v)
	}

	os.Setenv("SERVICE_VERSION", "1.2.3")
	defer os.Unsetenv("SERVICE_VERSION")
	if v := getVersion(); v != "1.2.3" {
		t.Errorf("expected version '1.2.3', got %s", v)
	}
}

func TestGetTracerNeverReturnsNil(t *testing.T) {
	tracer = nil
	if GetTracer() == nil {
		t.Fatal("GetTracer should not return nil before Init runs")
	}
}

func TestStartSpanReturnsUsableSpan(t *testing.T) {
	tracer = nil

	ctx := context.Background()
	spanCtx, span := StartSpan(ctx, "test-span")
	if spanCtx == nil {
		t.Fatal("StartSpan should return a context")
	}
	if span == nil {
		t.Fatal("StartSpan should return a span")
	}
	span.End()
}
