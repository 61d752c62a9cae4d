// Package services defines shared utilities consumed by the scheduler phases,
// the status API, and worker-side task handlers.
//
// Key responsibilities:
//   - Context helpers that stamp cycle IDs, phase names, driver names, and job
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep parameter errors,
//     submission failures, and transient failures distinguishable with
//     errors.Is after they cross package boundaries.
//
// Use these helpers when wiring new phase or task logic so operational
// behaviour stays uniform across the pipeline.
package services
