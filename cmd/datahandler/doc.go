// Command datahandler is the operator and worker CLI.
//
// Operators submit jobs, inspect their status and the inventory, query
// drivers, and run scheduling cycles by hand. Batch queue workers invoke the
// same binary as `datahandler task <kind> ...` (one-shot, e.g. a cluster
// Job) or `datahandler worker` (a long-running broker consumer). `datahandler
// daemon` runs the scheduler loop in the foreground.
package main
