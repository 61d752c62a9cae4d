// Package config loads, normalizes, and validates datahandler configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATAHANDLER_DATABASE_URL and DATAHANDLER_KAFKA_BROKERS. The Config type
// centralizes every knob the scheduler, CLI, and workers need: the store
// backend, phase batch sizes, queue backend, driver declarations, and the
// variable catalog consulted at job submission.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
