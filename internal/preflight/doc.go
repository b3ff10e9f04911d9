// Package preflight verifies environment readiness before pipeline work
// begins. Checks cover directory access, the speaker roster catalog, the
// transcription service, and required system binaries.
//
// RunAll executes the configuration-gated checks and returns results suitable
// for startup logging or status display. The daemon runs the full set once at
// startup, and the CLI status command re-evaluates service checks on demand
// through the FromConfig helpers.
package preflight
