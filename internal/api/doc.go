// Package api defines wire-format types and converters shared by the IPC
// server and the CLI. It translates job records, detector results and
// workflow status into transport-friendly DTOs so clients never depend on
// store internals.
//
// # Key Types
//
// Job/Stage: a job record with per-stage status, timestamps, and the
// workspace-relative instruction and output paths derived from the pipeline.
//
// Result: the effect of one CheckAndAdvance call.
//
// WorkflowStatus/DaemonStatus: poller state, job counts, and stalled stages.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums are lowercase strings. Timestamps use
// RFC3339 with milliseconds in UTC and are omitted when unset.
package api
