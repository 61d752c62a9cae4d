// Package api is the status and query surface shared by the CLI, the query
// task, and the scheduler.
//
// # Operations
//
// SubmitJob: validate the variable and the spatial/temporal specs, then insert
// a requested Job carrying the variable's driver and product.
//
// ProcessingStatus: resolve the specs into tiles and date/day bounds and count
// matching Products by status. Every status key is present.
//
// JobStatus: a Job's status plus, once it is past initializing, the
// ProcessingStatus of its own parameters.
//
// QueryService: ask a driver what is available remotely and, depending on the
// action, register Assets and Products. All registrations for one call commit
// in a single transaction.
//
// # Views
//
// JobView, AssetView, ProductView, and ChunkView are transport-friendly copies
// of inventory rows used by CLI JSON output. Dates render as YYYY-MM-DD and
// timestamps as RFC3339 with milliseconds.
package api
