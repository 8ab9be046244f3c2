// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry sets up OpenTelemetry trace and log export over
// OTLP/HTTP. A nil *Telemetry is valid and means export is disabled:
// its tracer is a no-op and Shutdown does nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/waterci/executor/lib/config"
)

// Telemetry owns the trace and log providers.
type Telemetry struct {
	name           string
	tracerProvider *sdktrace.TracerProvider
	loggerProvider *sdklog.LoggerProvider
}

// Setup creates the exporters and providers described by cfg and
// installs them as the global providers. It returns nil when cfg has
// no endpoint.
func Setup(ctx context.Context, cfg config.TelemetryConfig, serviceVersion string) (*Telemetry, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	logExporter, err := otlploghttp.New(ctx, logOptions(cfg)...)
	if err != nil {
		tracerProvider.Shutdown(ctx)
		return nil, fmt.Errorf("creating log exporter: %w", err)
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	global.SetLoggerProvider(loggerProvider)

	return &Telemetry{
		name:           cfg.ServiceName,
		tracerProvider: tracerProvider,
		loggerProvider: loggerProvider,
	}, nil
}

// hasScheme reports whether endpoint is a URL rather than host:port.
func hasScheme(endpoint string) bool {
	return strings.Contains(endpoint, "://")
}

func traceOptions(cfg config.TelemetryConfig) []otlptracehttp.Option {
	var options []otlptracehttp.Option
	if hasScheme(cfg.Endpoint) {
		options = append(options, otlptracehttp.WithEndpointURL(strings.TrimSuffix(cfg.Endpoint, "/")+"/v1/traces"))
	} else {
		options = append(options, otlptracehttp.WithEndpoint(cfg.Endpoint))
		if cfg.Insecure {
			options = append(options, otlptracehttp.WithInsecure())
		}
	}
	if len(cfg.Headers) > 0 {
		options = append(options, otlptracehttp.WithHeaders(cfg.Headers))
	}
	return options
}

func logOptions(cfg config.TelemetryConfig) []otlploghttp.Option {
	var options []otlploghttp.Option
	if hasScheme(cfg.Endpoint) {
		options = append(options, otlploghttp.WithEndpointURL(strings.TrimSuffix(cfg.Endpoint, "/")+"/v1/logs"))
	} else {
		options = append(options, otlploghttp.WithEndpoint(cfg.Endpoint))
		if cfg.Insecure {
			options = append(options, otlploghttp.WithInsecure())
		}
	}
	if len(cfg.Headers) > 0 {
		options = append(options, otlploghttp.WithHeaders(cfg.Headers))
	}
	return options
}

// Tracer returns the tracer for the executor's spans.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return t.tracerProvider.Tracer(t.name)
}

// LoggerProvider returns the provider log records are exported
// through, or nil when export is disabled.
func (t *Telemetry) LoggerProvider() otellog.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.loggerProvider
}

// Shutdown flushes pending telemetry and stops the exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	if err := t.loggerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("logger shutdown: %w", err))
	}
	return errors.Join(errs...)
}
