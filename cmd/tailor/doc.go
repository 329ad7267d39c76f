// Package main hosts the tailor CLI entrypoint and command graph.
//
// Read commands (list, show, events, status) go through the daemon over IPC
// when it is running and fall back to the job store otherwise. Operator
// actions (reset, force, accept, reissue, cancel, remove) always run in this
// process against the store and the per-job workspace lock, then nudge the
// daemon so it picks up the change without waiting for the next poll.
package main
