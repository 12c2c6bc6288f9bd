// Package telemetry provides OpenTelemetry observability for Forgeline
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer for Forgeline
var tracer = otel.Tracer("forgeline")

// Span names for Forgeline operations
const (
	// Mission spans
	SpanMissionStart   = "forgeline.mission.start"
	SpanMissionResume  = "forgeline.mission.resume"
	SpanMissionCancel  = "forgeline.mission.cancel"
	SpanMissionRefine  = "forgeline.mission.refine"

	// Step spans
	SpanStepExecute = "forgeline.step.execute"
	SpanStepRetry   = "forgeline.step.retry"

	// Plan spans
	SpanPlanDecompose = "forgeline.plan.decompose"
	SpanPlanLoad      = "forgeline.plan.load"

	// Runner spans
	SpanRunnerExecute = "forgeline.runner.execute"

	// Approval spans
	SpanApprovalRequest = "forgeline.approval.request"
)

// StartMissionSpan starts a span for a mission operation
func StartMissionSpan(ctx context.Context, name, missionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(KeyMissionID, missionID))
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartStepSpan starts a span for a step execution
func StartStepSpan(ctx context.Context, missionID, stepID, stepType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String(KeyMissionID, missionID),
		attribute.String(KeyStepID, stepID),
		attribute.String(KeyStepType, stepType),
	)
	return tracer.Start(ctx, SpanStepExecute, trace.WithAttributes(attrs...))
}

// StartRunnerSpan starts a span for a runner execution
func StartRunnerSpan(ctx context.Context, runnerName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(KeyRunnerName, runnerName))
	return tracer.Start(ctx, SpanRunnerExecute, trace.WithAttributes(attrs...))
}

// RecordError records an error on a span and marks its status
func RecordError(span trace.Span, err error, errorCategory string) {
	if err == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("exception.message", err.Error()),
		attribute.String("exception.type", fmt.Sprintf("%T", err)),
	}
	if errorCategory != "" {
		attrs = append(attrs, attribute.String(KeyErrorCategory, errorCategory))
	}

	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())
}

// SetStepStatus sets the step status as a span attribute
func SetStepStatus(span trace.Span, status string) {
	span.SetAttributes(attribute.String(KeyStepStatus, status))
}

// SetRiskInfo sets risk assessment attributes on a span
func SetRiskInfo(span trace.Span, level string, score float64, requiresApproval bool) {
	span.SetAttributes(
		attribute.String(KeyRiskLevel, level),
		attribute.Float64(KeyRiskScore, score),
		attribute.Bool(KeyRequiresApproval, requiresApproval),
	)
}

// GetTraceID returns the trace ID from context if available
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
