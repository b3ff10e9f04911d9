// Package pipeline drives hearings through the processing lifecycle. A poll
// loop scans for eligible hearings and feeds a bounded worker pool; each
// worker claims the hearing's lease, runs the stage action bound to the
// hearing's current stage, and either advances the stage or records the
// failure with exponential backoff. Hearings that exhaust their retry budget
// stall and leave automatic scheduling until an operator resets them.
// Operator stage requests and cancellations enter through the same manager.
package pipeline
