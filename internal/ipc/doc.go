// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and the
// conversions from daemon state to the api wire types. Operator actions are
// not exposed here: the CLI performs them against the store under the same
// per-job locks and then calls Trigger so the daemon picks up the change.
package ipc
