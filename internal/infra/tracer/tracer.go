// Package tracer configures OpenTelemetry for the runtime and offers small
// span helpers.
package tracer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"devspace/internal/infra/config"
)

const instrumentation = "devspace"

// Span names used across the runtime.
const (
	SpanProcessMessage = "agent.process_message"
	SpanExecuteAction  = "agent.execute_action"
	SpanLLMChat        = "llm.chat"
	SpanToolExecute    = "tool.execute"
	SpanHTTPRequest    = "http.request"
)

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Setup installs the global tracer provider described by cfg.Tracer and
// returns its shutdown func. Disabled tracing and the noop exporter install
// a noop provider.
func Setup(ctx context.Context, cfg *config.Config) (ShutdownFunc, error) {
	if !cfg.Tracer.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	var (
		out    io.Writer
		closer io.Closer
		opts   []stdouttrace.Option
	)
	switch cfg.Tracer.Exporter {
	case "", "noop":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case "stdout":
		out = os.Stdout
		opts = append(opts, stdouttrace.WithPrettyPrint())
	case "file":
		f, err := openTraceFile(cfg.TracePath())
		if err != nil {
			return nil, err
		}
		out, closer = f, f
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Tracer.Exporter)
	}

	exporter, err := stdouttrace.New(append(opts, stdouttrace.WithWriter(out))...)
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Tracer.Exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.Project.Name),
		semconv.ServiceVersion(cfg.Project.Version),
		attribute.String("deployment.environment", cfg.Project.Environment),
	))
	if err != nil {
		closeQuietly(closer)
		return nil, fmt.Errorf("tracer resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closer != nil {
			err = errors.Join(err, closer.Close())
		}
		return err
	}, nil
}

func openTraceFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return f, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// StartSpan starts a span on the runtime's tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, opts...)
}

// RecordError marks span failed with err.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetOK(span trace.Span) { span.SetStatus(codes.Ok, "") }

// End sets the span status from err and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		SetOK(span)
	}
	span.End()
}

func StringAttr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func IntAttr(key string, value int) attribute.KeyValue { return attribute.Int(key, value) }
