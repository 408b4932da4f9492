// © Copyright 2026, Stitch RPC Authors
// SPDX-License-Identifier: Apache-2.0

// Package stitchotel provides OpenTelemetry instrumentation for stitch
// servers. It implements the [stitch.DispatchHook] interface to add
// distributed tracing and metrics to procedure dispatch.
//
// Usage:
//
//	registry := stitch.NewRegistry()
//	// ... register procedures ...
//	srv := stitch.NewHttpServer(registry)
//	stitchotel.Instrument(srv, stitchotel.DefaultConfig())
package stitchotel

import (
	"context"
	"fmt"
	"time"

	"github.com/stitch-rpc/stitch-go/stitch"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "stitch"

// Config configures OpenTelemetry instrumentation for a stitch server.
type Config struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts trace context from transport metadata.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed dispatches.
	// Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value. Defaults to "stitch".
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns a Config with sensible defaults. TracerProvider,
// MeterProvider, and Propagator are resolved from the global OTel SDK at
// instrumentation time.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// Instrument attaches OpenTelemetry instrumentation to a stitch HTTP
// server. The hook is installed via [stitch.HttpServer.SetDispatchHook].
func Instrument(server *stitch.HttpServer, cfg Config) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "stitch"
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.requestCounter, _ = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of dispatched procedure calls"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of dispatched procedure calls"),
		)
	}

	server.SetDispatchHook(hook)
}

// otelHook implements stitch.DispatchHook with OpenTelemetry tracing and
// metrics.
type otelHook struct {
	cfg               Config
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnDispatchStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnDispatchStart extracts parent trace context and starts a server span.
func (h *otelHook) OnDispatchStart(ctx context.Context, info stitch.DispatchInfo) (context.Context, stitch.HookToken) {
	// Extract parent trace context from transport metadata (traceparent/tracestate)
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		carrier := propagation.MapCarrier(info.TransportMetadata)
		ctx = h.cfg.Propagator.Extract(ctx, carrier)
	}

	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	spanName := fmt.Sprintf("stitch/%s", info.Procedure)

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "stitch"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Procedure),
		attribute.String("rpc.stitch.kind", info.Kind),
		attribute.String("rpc.stitch.request_id", info.RequestID),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	if v, ok := info.TransportMetadata["remote_addr"]; ok && v != "" {
		attrs = append(attrs, attribute.String("net.peer.ip", v))
	}
	if v, ok := info.TransportMetadata["user_agent"]; ok && v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}

	ctx, span := h.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnDispatchEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnDispatchEnd(ctx context.Context, token stitch.HookToken, info stitch.DispatchInfo, stats *stitch.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "stitch"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Procedure),
			attribute.String("rpc.stitch.kind", info.Kind),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("rpc.stitch.request_bytes", stats.RequestBytes),
				attribute.Int64("rpc.stitch.response_bytes", stats.ResponseBytes),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			st.span.SetAttributes(attribute.String("rpc.stitch.error_type", fmt.Sprintf("%T", err)))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
