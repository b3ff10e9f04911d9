// Package logs reads the daemon's log file for the tail RPC and the
// `gavel logs` command.
//
// Reads are offset-based so clients poll without re-reading the whole file; a
// negative offset means "the last N lines". Follow mode waits briefly for new
// lines before returning so the CLI can stream without a busy loop.
package logs
