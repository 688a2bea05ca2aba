// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs OpenTelemetry providers for the hook binaries.
//
// Until Init runs, otel.Tracer and otel.Meter are no-ops, which is the
// default for hook invocations. Exporters never write to stdout because
// stdout carries the hook response.
//
//	Traces:  none | stderr | file | otlp
//	Metrics: none | stderr | file | prometheus
//
// The prometheus reader only makes sense for the long-running watch mode,
// which serves MetricsHandler on an HTTP address.
package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter names.
const (
	ExporterNone       = "none"
	ExporterStderr     = "stderr"
	ExporterFile       = "file"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrNilContext is returned when Init gets a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Traces selects the span exporter.
	Traces string

	// Metrics selects the metric reader.
	Metrics string

	// File receives stdout-format output when an exporter is "file".
	File string

	// OTLPEndpoint is the gRPC collector for the "otlp" trace exporter.
	OTLPEndpoint string
	OTLPInsecure bool

	// Stderr overrides os.Stderr for the "stderr" exporters. Used by tests.
	Stderr io.Writer
}

// DefaultConfig returns a disabled configuration. OTEL_TRACES_EXPORTER and
// OTEL_METRICS_EXPORTER override the defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "aleutian-hooks",
		ServiceVersion: "dev",
		Traces:         getEnvOr("OTEL_TRACES_EXPORTER", ExporterNone),
		Metrics:        getEnvOr("OTEL_METRICS_EXPORTER", ExporterNone),
		OTLPEndpoint:   getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init installs global providers according to cfg.
//
// Description:
//
//	"none" leaves the corresponding otel global untouched. The returned
//	shutdown flushes batched spans and pending metrics and closes the
//	output file; hooks call it before exiting.
//
// Inputs:
//
//	ctx - Context for exporter setup
//	cfg - Exporter selection
//
// Outputs:
//
//	shutdown - Always non-nil on success. Must be called.
//	error - Unknown exporter, unopenable file or exporter failure
//
// Thread Safety: Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var shutdownFuncs []func(context.Context) error
	cleanup := func(ctx context.Context) error {
		var errs []error
		// Reverse order: providers flush before the file they write to closes.
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFuncs[i](ctx))
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = cleanup(ctx)
		}
	}()

	out, closeOut, err := openOutput(cfg)
	if err != nil {
		return nil, err
	}
	if closeOut != nil {
		shutdownFuncs = append(shutdownFuncs, closeOut)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.Traces != "" && cfg.Traces != ExporterNone {
		tp, closeConn, err := initTracer(ctx, cfg, res, out)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		if closeConn != nil {
			shutdownFuncs = append(shutdownFuncs, func(context.Context) error { return closeConn() })
		}
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.Metrics != "" && cfg.Metrics != ExporterNone {
		mp, err := initMeter(cfg, res, out)
		if err != nil {
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return cleanup, nil
}

// openOutput resolves the writer shared by the stderr and file exporters.
func openOutput(cfg Config) (io.Writer, func(context.Context) error, error) {
	if cfg.Traces != ExporterFile && cfg.Metrics != ExporterFile {
		if cfg.Stderr != nil {
			return cfg.Stderr, nil, nil
		}
		return os.Stderr, nil, nil
	}
	if cfg.File == "" {
		return nil, nil, fmt.Errorf("%w: file exporter needs a path", ErrUnknownExporter)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open telemetry file: %w", err)
	}
	return f, func(context.Context) error { return f.Close() }, nil
}

// initTracer builds the tracer provider. closeConn is non-nil for the otlp
// exporter, which does not own the gRPC connection it is given.
func initTracer(ctx context.Context, cfg Config, res *resource.Resource, out io.Writer) (tp *trace.TracerProvider, closeConn func() error, err error) {
	var exporter trace.SpanExporter

	switch cfg.Traces {
	case ExporterStderr, ExporterFile:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(out))
	case ExporterOTLP:
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		if cfg.OTLPInsecure {
			creds = insecure.NewCredentials()
		}
		conn, dialErr := grpc.NewClient(cfg.OTLPEndpoint, grpc.WithTransportCredentials(creds))
		if dialErr != nil {
			return nil, nil, fmt.Errorf("create otlp connection: %w", dialErr)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			_ = conn.Close()
		}
		closeConn = conn.Close
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Traces)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create exporter: %w", err)
	}

	tp = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	return tp, closeConn, nil
}

// Prometheus state for MetricsHandler.
var (
	prometheusHandler   http.Handler
	prometheusHandlerMu sync.RWMutex
)

// MetricsHandler returns the /metrics handler, nil unless Metrics is
// "prometheus".
func MetricsHandler() http.Handler {
	prometheusHandlerMu.RLock()
	defer prometheusHandlerMu.RUnlock()
	return prometheusHandler
}

func initMeter(cfg Config, res *resource.Resource, out io.Writer) (*metric.MeterProvider, error) {
	switch cfg.Metrics {
	case ExporterStderr, ExporterFile:
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil

	case ExporterPrometheus:
		// A private registry keeps repeated Init calls (tests, restarts)
		// from colliding on the global one.
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		prometheusHandlerMu.Lock()
		prometheusHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		prometheusHandlerMu.Unlock()
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(exporter),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Metrics)
	}
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
