// Package daemon runs the long-lived scheduler process.
//
// A Daemon takes the single-instance flock, drives the scheduler loop on the
// configured interval, and serves a small HTTP API for job submission and
// status. With the local batch queue backend the daemon also executes the
// submitted tasks in-process.
//
// Keep orchestration here: phase logic belongs to the scheduler and task
// bodies to the tasks package.
package daemon
