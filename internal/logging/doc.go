// Package logging builds the slog loggers used by the scheduler, the CLI,
// and task workers.
//
// Two handlers are available. The console handler lifts the component,
// phase, driver, and cycle id into a compact line header; the JSON handler
// emits one object per record for log shippers. WithContext copies the
// scheduling identifiers and the active trace span from a context onto a
// logger, and WarnWithContext/ErrorWithContext enforce the event_type and
// error_hint fields operators filter on.
package logging
