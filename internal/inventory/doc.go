// Package inventory is the work-item store: jobs, assets, products, their
// dependencies, and the post-process chunks that finish a job.
//
// The Store runs on SQLite for single-host use and on PostgreSQL when the
// scheduler and its workers share a database. Both dialects are driven
// through database/sql with '?' placeholders rebound per backend, and the
// schema is owned by golang-migrate migrations embedded in the binary.
//
// Claims happen inside Store.WithTx through the Tx.Lock* selectors. On
// PostgreSQL those selections take row locks (SELECT ... FOR UPDATE); on
// SQLite the transaction begins IMMEDIATE and holds the database write lock,
// so two schedulers can never claim the same requested row.
//
// Every status column is a closed enumeration with a transition table.
// Updates are guarded by their legal source statuses and report
// ErrIllegalTransition rather than overwrite a concurrent change. A row
// carries a sched-id exactly while it is scheduled, in progress, or retrying;
// the schema enforces this with a CHECK constraint.
package inventory
