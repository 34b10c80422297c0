package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/eventlog-batch-reader/eventstore/oteladapters"
)

func Test_TracingCollector_StartSpan_And_FinishSpan_Success(t *testing.T) {
	// setup
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	collector := oteladapters.NewTracingCollector(provider.Tracer("test"))

	// act
	ctx, spanCtx := collector.StartSpan(context.Background(), "eventstore.read_batch", map[string]string{
		"operation": "read_batch",
		"partition": "default",
	})
	collector.FinishSpan(spanCtx, "success", map[string]string{"event_count": "3"})

	// assert
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "eventstore.read_batch", span.Name)
	assert.Equal(t, trace.SpanKindClient, span.SpanKind)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assertSpanHasAttribute(t, span, "operation", "read_batch")
	assertSpanHasAttribute(t, span, "partition", "default")
	assertSpanHasAttribute(t, span, "event_count", "3")
}

func Test_TracingCollector_StatusMapping(t *testing.T) {
	// setup
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	collector := oteladapters.NewTracingCollector(provider.Tracer("test"))

	testCases := []struct {
		status              string
		expectedCode        codes.Code
		expectedDescription string
	}{
		{"ok", codes.Ok, ""},
		{"success", codes.Ok, ""},
		{"error", codes.Error, "batch read failed"},
		{"canceled", codes.Error, "batch read cancelled"},
		{"cancelled", codes.Error, "batch read cancelled"},
		{"timeout", codes.Error, "batch read timed out"},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			exporter.Reset()

			// act
			_, spanCtx := collector.StartSpan(context.Background(), "test", nil)
			collector.FinishSpan(spanCtx, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.expectedCode, spans[0].Status.Code)
			assert.Equal(t, tc.expectedDescription, spans[0].Status.Description)
		})
	}
}

func Test_TracingCollector_FinishSpan_When_StatusIsUnknown(t *testing.T) {
	// setup
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	collector := oteladapters.NewTracingCollector(provider.Tracer("test"))

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "test", nil)
	collector.FinishSpan(spanCtx, "partial", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "status", "partial")
}

func Test_TracingCollector_StartSpan_When_ParentSpanExists(t *testing.T) {
	// setup
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tracer := provider.Tracer("test")
	collector := oteladapters.NewTracingCollector(tracer)

	// arrange
	parentCtx, parentSpan := tracer.Start(context.Background(), "consumer.handle")

	// act
	_, spanCtx := collector.StartSpan(parentCtx, "eventstore.read_batch", nil)
	collector.FinishSpan(spanCtx, "success", nil)
	parentSpan.End()

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	child := spans[0]
	parent := spans[1]
	assert.Equal(t, "eventstore.read_batch", child.Name)
	assert.Equal(t, parent.SpanContext.TraceID(), child.SpanContext.TraceID())
	assert.Equal(t, parent.SpanContext.SpanID(), child.Parent.SpanID())
}

func Test_TracingCollector_FinishSpan_When_SpanContextIsForeign(t *testing.T) {
	// setup
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	collector := oteladapters.NewTracingCollector(provider.Tracer("test"))

	// act + assert
	assert.NotPanics(t, func() {
		collector.FinishSpan(foreignSpanContext{}, "success", nil)
		collector.FinishSpan(nil, "success", nil)
	})
	assert.Empty(t, exporter.GetSpans())
}

func Test_OTelSpanContext_AddAttribute_And_SetStatus(t *testing.T) {
	// setup
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	collector := oteladapters.NewTracingCollector(provider.Tracer("test"))

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "test", nil)
	spanCtx.AddAttribute("current_global_position", "42")
	spanCtx.SetStatus("error")
	collector.FinishSpan(spanCtx, "error", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "current_global_position", "42")
}

type foreignSpanContext struct{}

func (foreignSpanContext) SetStatus(string)            {}
func (foreignSpanContext) AddAttribute(string, string) {}

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key, expectedValue string) {
	t.Helper()

	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) && attr.Value.AsString() == expectedValue {
			return
		}
	}

	assert.Fail(t, "span attribute missing", "expected %s=%s", key, expectedValue)
}
