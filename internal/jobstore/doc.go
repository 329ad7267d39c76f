// Package jobstore persists jobs, their per-stage state, and an audit trail of
// every committed transition in SQLite.
//
// Each job row carries an optimistic version counter. Every mutation runs in
// one transaction that compares and increments that version, and stage
// updates additionally assert the stage's previous status, so two writers
// racing on the same snapshot cannot both commit. Losers receive an error
// marked with services.ErrConflict and can reload and retry.
//
// Schema changes append a statement to migrations in schema.go. Open applies
// any missing steps and refuses databases written by a newer build.
package jobstore
