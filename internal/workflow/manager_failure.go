package workflow

import (
	"context"
	"errors"
	"time"

	"tailor/internal/logging"
	"tailor/internal/services"
)

const (
	retryInitialBackoff = 50 * time.Millisecond
	retryMaxBackoff     = 2 * time.Second
)

// Advance runs CheckAndAdvance for one job, retrying conflicts and I/O
// failures up to workflow.retry_budget attempts.
func (m *Manager) Advance(ctx context.Context, jobID string) (Result, error) {
	logger := logging.WithContext(services.WithJobID(ctx, jobID), m.logger)
	delay := retryInitialBackoff
	var (
		result Result
		err    error
	)
	for attempt := 1; attempt <= m.retryBudget; attempt++ {
		result, err = m.detector.CheckAndAdvance(ctx, jobID)
		if err == nil || !services.Retryable(err) || attempt == m.retryBudget {
			break
		}
		logger.Debug("retrying detector call",
			logging.Int("attempt", attempt),
			logging.String("error_kind", services.FailureKind(err)),
			logging.Error(err),
		)
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
		delay = nextBackoff(delay, m.retryDelay)
	}
	return result, err
}

func nextBackoff(current, limit time.Duration) time.Duration {
	if limit <= 0 || limit > retryMaxBackoff {
		limit = retryMaxBackoff
	}
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func (m *Manager) handleAdvanceError(ctx context.Context, jobID string, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	logger := logging.WithContext(services.WithJobID(ctx, jobID), m.logger)
	kind := services.FailureKind(err)

	if errors.Is(err, services.ErrStaleJob) {
		logger.Info("job no longer exists; dropping from poll set",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_dropped"),
		)
		m.forget(jobID)
		return
	}

	m.setLastError(err)
	logging.ErrorWithContext(logger, "job check failed", "detector_failed",
		logging.Error(err),
		logging.String("error_kind", kind),
		logging.String(logging.FieldErrorHint, errorHint(err)),
	)
	m.notifyError(ctx, jobID, err)
	if recordErr := m.store.RecordError(ctx, jobID, err.Error()); recordErr != nil && !errors.Is(recordErr, services.ErrStaleJob) {
		logging.WarnWithContext(logger, "failed to record job error", "job_error_record_failed",
			logging.Error(recordErr),
			logging.String(logging.FieldErrorHint, "check job database access"),
			logging.String(logging.FieldImpact, "job last_error is out of date"),
		)
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrConflict):
		return "another writer kept changing the job; it will be retried next poll"
	case errors.Is(err, services.ErrIO):
		return "check workspace permissions and free space"
	case errors.Is(err, services.ErrConfiguration):
		return "the job references a stage the pipeline does not define; check pipeline settings"
	case errors.Is(err, services.ErrTransient):
		return "retry later or check for a stuck process holding the job lock"
	default:
		return "check logs for details"
	}
}

// recordResult reports whether the result newly marks its job stalled.
func (m *Manager) recordResult(result Result) bool {
	m.mu.Lock()
	snapshot := result
	m.lastResult = &snapshot
	_, known := m.stalled[result.JobID]
	if result.Stalled {
		m.stalled[result.JobID] = result
	} else {
		delete(m.stalled, result.JobID)
	}
	m.mu.Unlock()

	if result.Stalled && !known {
		logging.WarnWithContext(m.logger, "stage stalled", "stage_stalled",
			logging.JobID(result.JobID),
			logging.Stage(result.ActiveStage),
			logging.Duration("waiting_for", result.StalledFor),
			logging.String(logging.FieldErrorHint, "check the content agent, then reissue or force the stage"),
			logging.String(logging.FieldImpact, "job is waiting on agent output"),
		)
	}
	return result.Stalled && !known
}

func (m *Manager) forget(jobID string) {
	m.mu.Lock()
	delete(m.stalled, jobID)
	delete(m.triggered, jobID)
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
