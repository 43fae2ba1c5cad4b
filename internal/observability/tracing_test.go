package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func attr(kvs []attribute.KeyValue, key string) (string, bool) {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}
	return "", false
}

func TestStartCommandSpan(t *testing.T) {
	exporter := installRecorder(t)

	_, span := StartCommandSpan(context.Background(), "list_containers")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "gateway.list_containers" {
		t.Errorf("name = %q", spans[0].Name)
	}
	if v, ok := attr(spans[0].Attributes, "dockctl.command"); !ok || v != "list_containers" {
		t.Errorf("dockctl.command = %q, %v", v, ok)
	}
	if spans[0].Status.Code == codes.Error {
		t.Errorf("successful span marked failed")
	}
}

func TestRecordSpanError(t *testing.T) {
	exporter := installRecorder(t)

	_, span := StartCommandSpan(context.Background(), "remove_volume")
	RecordSpanError(span, errors.New("volume in use"), "backend_rejected")
	span.End()

	_, ok := StartCommandSpan(context.Background(), "list_volumes")
	RecordSpanError(ok, nil, "")
	ok.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	failed := spans[0]
	if failed.Status.Code != codes.Error || failed.Status.Description != "volume in use" {
		t.Errorf("status = %+v", failed.Status)
	}
	if v, _ := attr(failed.Attributes, "dockctl.failure_kind"); v != "backend_rejected" {
		t.Errorf("failure_kind = %q", v)
	}
	if len(failed.Events) == 0 {
		t.Errorf("error event not recorded")
	}
	if _, found := attr(spans[1].Attributes, "dockctl.failure_kind"); found {
		t.Errorf("nil error set failure_kind")
	}
}
