package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	tp, tracer, err := InitTracer(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tp.Shutdown(context.Background())

	if otel.GetTracerProvider() != tp {
		t.Fatal("expected global tracer provider to be set")
	}
	_, span := tracer.Start(context.Background(), "test-span")
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a recording span")
	}
	span.End()
}

func TestTrimScheme(t *testing.T) {
	if got := trimScheme("http://collector:4317"); got != "collector:4317" {
		t.Fatalf("unexpected endpoint: %s", got)
	}
	if got := trimScheme("collector:4317"); got != "collector:4317" {
		t.Fatalf("unexpected endpoint: %s", got)
	}
}
