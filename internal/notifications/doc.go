// Package notifications publishes job outcomes to ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so the
// daemon can publish unconditionally. Events cover job completion, job
// failure, and scheduling cycles that ended in an error.
package notifications
