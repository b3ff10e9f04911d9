// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp hearing IDs, stage names, worker lanes, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that tag failures with the
//     taxonomy the pipeline records in attempt history (discovery, extraction,
//     trimming, labeling, lock contention, stalled).
//   - Cancellation classification so deliberate aborts never count against a
//     hearing's retry budget.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
