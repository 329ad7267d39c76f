// Package workflow detects agent output and advances jobs through the
// pipeline.
//
// Detector.CheckAndAdvance is the single entry point for progress. It reads a
// lock-free snapshot of the job, probes the active stage's output artifact,
// and when a transition is due takes the per-job lock, plans every transition
// of the invocation (completion, cascade into the next stage's instruction, or
// failure), and commits them in one versioned store transaction. Calling it
// again with nothing new on disk is a no-op.
//
// The Manager polls every active job on an interval, bounded by
// workflow.max_parallel, retries conflicts and I/O failures within the
// configured budget, reports stalled stages, and wakes early on filesystem
// events when workflow.watch_filesystem is set. Operator actions (reset,
// force, accept, reissue, cancel) live on Operator and share the same locks.
package workflow
