package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"datahandler/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCycleID identifies one scheduling cycle across its four phases.
	FieldCycleID = "cycle_id"
	// FieldPhase is the scheduling phase (query, fetch, process, export_and_aggregate).
	FieldPhase = "phase"
	// FieldDriver is the data driver name.
	FieldDriver = "driver"
	// FieldJobID is the job row identifier.
	FieldJobID = "job_id"
	// FieldSchedID is the batch identifier returned by the queue backend.
	FieldSchedID = "sched_id"
	// FieldTaskKind is the batch task kind.
	FieldTaskKind = "task_kind"
	// FieldEventType is a short machine-friendly label for the logged event.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldTraceID and FieldSpanID tie a record to the active span.
	FieldTraceID = "trace_id"
	FieldSpanID  = "span_id"
)

// ContextFields extracts the scheduling identifiers and the active span from
// ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 6)
	if id, ok := services.CycleIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCycleID, id))
	}
	if phase, ok := services.PhaseFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPhase, phase))
	}
	if driver, ok := services.DriverFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDriver, driver))
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldJobID, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			slog.String(FieldTraceID, sc.TraceID().String()),
			slog.String(FieldSpanID, sc.SpanID().String()),
		)
	}
	return fields
}

// WithContext returns logger with ContextFields(ctx) attached.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
