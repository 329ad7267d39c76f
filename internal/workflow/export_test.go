package workflow

// SetAfterSnapshotHook runs fn after the lock-free snapshot and before the
// per-job lock is taken.
func SetAfterSnapshotHook(d *Detector, fn func(jobID string)) {
	d.afterSnapshot = fn
}

// SetBeforeCommitHook runs fn after the plan is built and before it is
// committed.
func SetBeforeCommitHook(d *Detector, fn func(jobID string)) {
	d.beforeCommit = fn
}
