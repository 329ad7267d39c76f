// Package logging assembles structured slog loggers used across tailor.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so detector and operator code
// tag log lines with job IDs, stage names, and correlation IDs. A no-op logger
// is provided for tests and wiring code that cannot fail.
package logging
