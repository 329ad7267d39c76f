// Package services defines shared helpers consumed by the detector, the
// poller, and operator tooling.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, actors, and correlation
//     identifiers for logging and auditing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (validation vs conflict vs workspace I/O) with errors.Is.
//
// Use these helpers when adding new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
