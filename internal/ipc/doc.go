// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and conversions
// between hearing records and lightweight wire representations. Server errors
// cross the socket as strings; the client rebuilds the lock-contention and
// stalled sentinels so commands can branch on them, while everything else
// surfaces as received.
package ipc
