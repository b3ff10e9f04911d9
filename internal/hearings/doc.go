// Package hearings persists tracked proceedings in SQLite and exposes the
// guarded operations that drive their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, lease claims, attempt history, and the stage transitions the
// pipeline depends on. Stage order is total and never decreases outside the
// operator reset; every mutation of stage, stall, or retry bookkeeping is a
// single guarded UPDATE so concurrent workers cannot double-apply a
// transition or resurrect a reclaimed lease.
//
// Attempt rows are append-only execution records. The attempt_count column
// on the hearing tracks only consecutive failures at the current stage and
// resets when the stage advances; history lives in processing_attempts.
//
// Treat this package as the single source of truth for hearing semantics;
// when you add new stages or metadata fields, update schema.sql and bump
// schemaVersion.
package hearings
