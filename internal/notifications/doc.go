// Package notifications publishes job milestones to ntfy.
//
// The workflow manager publishes completed jobs, failed stages and newly
// stalled stages. When no topic is configured NewService returns a no-op
// notifier, so callers never check whether notifications are enabled.
package notifications
