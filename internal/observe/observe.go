// Package observe is the logging collaborator of the store. It emits
// structured slog events and wraps named regions in OpenTelemetry spans.
package observe

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentation = "github.com/syssam/nodestore"

// Logger describes store activity. The zero value is not usable; use New
// or Nop.
type Logger struct {
	log    *slog.Logger
	tracer trace.Tracer
}

// Option configures a Logger.
type Option func(*Logger)

// WithTracerProvider sets the provider regions are traced with.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Logger) {
		l.tracer = tp.Tracer(instrumentation)
	}
}

// New returns a Logger writing to log.
func New(log *slog.Logger, opts ...Option) *Logger {
	l := &Logger{log: log, tracer: otel.Tracer(instrumentation)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{
		log:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		tracer: noop.NewTracerProvider().Tracer(instrumentation),
	}
}

// Slog returns the underlying slog logger.
func (l *Logger) Slog() *slog.Logger { return l.log }

// Describe logs a debug event and adds it to the current span.
func (l *Logger) Describe(ctx context.Context, msg string, args ...any) {
	l.log.DebugContext(ctx, msg, args...)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(msg)
	}
}

// Exception logs err and records it on the current span.
func (l *Logger) Exception(ctx context.Context, err error, msg string, args ...any) {
	l.log.ErrorContext(ctx, msg, append(args, "error", err)...)
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Region opens a named span. The returned function ends it and logs the
// elapsed time; pass it the error of the region, if any.
//
//	ctx, end := log.Region(ctx, "graph.save", "table", name)
//	defer func() { end(err) }()
func (l *Logger) Region(ctx context.Context, name string, args ...any) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, name, trace.WithAttributes(attrs(args)...))
	return ctx, func(err error) {
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		l.log.DebugContext(ctx, name, append(args, "elapsed", elapsed, "error", err)...)
	}
}

// attrs converts slog-style key/value pairs into span attributes.
func attrs(args []any) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		switch v := args[i+1].(type) {
		case string:
			kvs = append(kvs, attribute.String(key, v))
		case int:
			kvs = append(kvs, attribute.Int(key, v))
		case int64:
			kvs = append(kvs, attribute.Int64(key, v))
		case bool:
			kvs = append(kvs, attribute.Bool(key, v))
		case interface{ String() string }:
			kvs = append(kvs, attribute.String(key, v.String()))
		}
	}
	return kvs
}
