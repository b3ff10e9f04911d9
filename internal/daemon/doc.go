// Package daemon is the composition root for gaveld. It enforces
// single-instance execution through a file lock, owns pipeline start and
// stop, and fronts the admin operations the IPC layer exposes: registering
// hearings, listing and inspecting them, approving reviews, requesting
// stages, resets, and removal.
package daemon
