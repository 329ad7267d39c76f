// Package daemon coordinates the long-running tailor process.
//
// It wires configuration, the job store, the workflow manager, and the
// operator into a single lifecycle with flock-based locking to prevent
// multiple instances. It serves Prometheus metrics when a bind address is
// configured and exposes the read and control helpers the IPC server calls.
//
// Keep orchestration logic here: detection and job mutation live in the
// workflow package while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
