package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setup(t *testing.T) (*Logger, *bytes.Buffer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(log, WithTracerProvider(tp)), &buf, exporter
}

func TestRegion(t *testing.T) {
	l, buf, exporter := setup(t)

	ctx, end := l.Region(context.Background(), "graph.save", "table", "itemTypeFolder", "rows", 2)
	l.Describe(ctx, "table resolved")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "graph.save", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "table resolved", spans[0].Events[0].Name)
	assert.Len(t, spans[0].Attributes, 2)

	out := buf.String()
	assert.Contains(t, out, "table resolved")
	assert.Contains(t, out, "msg=graph.save")
	assert.Contains(t, out, "elapsed=")
}

func TestRegionError(t *testing.T) {
	l, buf, exporter := setup(t)
	boom := errors.New("boom")

	ctx, end := l.Region(context.Background(), "graph.get")
	l.Exception(ctx, boom, "lookup failed", "guid", "a")
	end(boom)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "boom", spans[0].Status.Description)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestNop(t *testing.T) {
	l := Nop()
	ctx, end := l.Region(context.Background(), "noop")
	l.Describe(ctx, "ignored")
	l.Exception(ctx, errors.New("ignored"), "ignored")
	end(nil)
	assert.NotNil(t, l.Slog())
}
