// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/rackforge/factoryflow/pkg/flow"
)

// NewTracerProvider builds the SDK tracer provider the engine spans into:
// one span per IndependentFlow/OptionalFlow scope and one child span per
// FlowStep/ParallelStep (spec.md's ambient tracing layer, carried
// regardless of the firmware-domain Non-goals). Exports to stdout unless
// settings.otel_endpoint names a collector, in which case settings.otel_protocol
// (default "grpc") selects the OTLP transport.
func NewTracerProvider(ctx context.Context, serviceName string, settings flow.Settings) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build tracer resource: %w", err)
	}

	exporter, err := newSpanExporter(ctx, settings)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	), nil
}

func newSpanExporter(ctx context.Context, settings flow.Settings) (sdktrace.SpanExporter, error) {
	if settings.OtelEndpoint == "" {
		return stdouttrace.New()
	}

	switch settings.OtelProtocol {
	case "http":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(settings.OtelEndpoint),
			otlptracehttp.WithInsecure(),
		)
	default:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(settings.OtelEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
}

// startScopeSpan opens a span for one tag scope (main sequence, an
// IndependentFlow, or an OptionalFlow invocation). Returns a no-op ending
// function if the Engine has no Tracer configured.
func (e *Engine) startScopeSpan(ctx context.Context, sink telemetrySink) (context.Context, func(status flow.FlowState)) {
	if e.Tracer == nil {
		return ctx, func(flow.FlowState) {}
	}
	ctx, span := e.Tracer.Start(ctx, "flow_scope", trace.WithAttributes(
		attribute.String("factoryflow.scope_key", sink.Key()),
	))
	return ctx, func(status flow.FlowState) {
		span.SetAttributes(attribute.String("factoryflow.status", string(status)))
		if status == flow.FlowFailed {
			span.SetStatus(codes.Error, "flow failed")
		}
		span.End()
	}
}

// startStepSpan opens a child span for one FlowStep/ParallelStep-child
// execution attempt-cluster.
func (e *Engine) startStepSpan(ctx context.Context, step *flow.FlowStep) (context.Context, func(exec flow.StepExecution)) {
	if e.Tracer == nil {
		return ctx, func(flow.StepExecution) {}
	}
	ctx, span := e.Tracer.Start(ctx, "flow_step", trace.WithAttributes(
		attribute.String("factoryflow.step_name", step.Name),
		attribute.String("factoryflow.device_type", string(step.DeviceType)),
		attribute.String("factoryflow.device_id", step.DeviceID),
		attribute.String("factoryflow.operation", step.Operation),
	))
	return ctx, func(exec flow.StepExecution) {
		span.SetAttributes(
			attribute.Int("factoryflow.retry_attempts", exec.RetryAttempts),
			attribute.Bool("factoryflow.final_result", exec.FinalResult),
		)
		if !exec.FinalResult {
			span.SetStatus(codes.Error, "step failed")
		}
		span.End()
	}
}
