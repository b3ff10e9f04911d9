// Package publish moves approved hearing artifacts out of the staging tree
// and into the long-term library. The stage lays out directories per
// committee, verifies the destination filesystem has headroom before any
// move, and announces the published hearing to operators. Published hearings
// are terminal.
package publish
