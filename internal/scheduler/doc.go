// Package scheduler runs the four-phase control loop over the inventory.
//
// Each phase scans the store, claims eligible rows under row locks, submits
// them to the batch queue, and stamps the returned batch ids back onto the
// claimed rows, all inside one transaction. Phases never call each other;
// phase N's complete rows are phase N+1's input.
//
//   - ScheduleQuery: requested Jobs -> initializing, one query task each.
//   - ScheduleFetch: per driver, at most one live fetch batch. Dead batches
//     are cleaned up (requeue or give up) before requested Assets are claimed
//     into chained batches.
//   - ScheduleProcess: requested Products whose dependencies are all complete,
//     in unchained batches.
//   - ScheduleExportAndAggregate: readiness (fan-out into chunks) and
//     completion (fan-in from chunk status and liveness).
//
// RunCycle runs the phases in order once; Loop repeats RunCycle on an
// interval until its context ends.
package scheduler
