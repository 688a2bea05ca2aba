// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func resetGlobals(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_None(t *testing.T) {
	resetGlobals(t)
	shutdown, err := Init(context.Background(), Config{Traces: ExporterNone, Metrics: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_DefaultConfigIsDisabled(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()
	assert.Equal(t, ExporterNone, cfg.Traces)
	assert.Equal(t, ExporterNone, cfg.Metrics)
}

func TestInit_StderrTraces(t *testing.T) {
	resetGlobals(t)
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{
		ServiceName: "hooks-test",
		Traces:      ExporterStderr,
		Metrics:     ExporterNone,
		Stderr:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "Engine.Evaluate")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "Engine.Evaluate")
}

func TestInit_FileExporters(t *testing.T) {
	resetGlobals(t)
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	shutdown, err := Init(context.Background(), Config{
		Traces:  ExporterFile,
		Metrics: ExporterFile,
		File:    path,
	})
	require.NoError(t, err)

	counter, err := otel.Meter("test").Int64Counter("hooks_tool_runs_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
	_, span := otel.Tracer("test").Start(context.Background(), "ExecRunner.Run")
	span.End()

	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ExecRunner.Run")
	assert.Contains(t, string(data), "hooks_tool_runs_total")
}

func TestInit_FileWithoutPath(t *testing.T) {
	resetGlobals(t)
	_, err := Init(context.Background(), Config{Traces: ExporterFile})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_UnknownExporter(t *testing.T) {
	resetGlobals(t)
	_, err := Init(context.Background(), Config{Traces: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{Metrics: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_Prometheus(t *testing.T) {
	resetGlobals(t)
	shutdown, err := Init(context.Background(), Config{Metrics: ExporterPrometheus})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	handler := MetricsHandler()
	require.NotNil(t, handler)

	counter, err := otel.Meter("test").Int64Counter("hooks_evaluations_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hooks_evaluations_total")
}

func TestInit_OTLPConnectsLazily(t *testing.T) {
	resetGlobals(t)
	// No collector listens here; the client only dials on first export.
	shutdown, err := Init(context.Background(), Config{
		Traces:       ExporterOTLP,
		OTLPEndpoint: "127.0.0.1:1",
		OTLPInsecure: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
