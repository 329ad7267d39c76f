package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tailor/internal/services"
)

// Transition moves one stage from From to To.
type Transition struct {
	StageIndex int
	From       StageStatus
	To         StageStatus
	// Error is stored on the stage when To is StageFailed.
	Error string
	// Detail is recorded on the audit event.
	Detail string
}

// Commit is a set of stage transitions applied atomically against one job
// version.
type Commit struct {
	JobID string
	// ExpectVersion must equal the job's current version; 0 skips the check.
	ExpectVersion int64
	Transitions   []Transition
	Actor         string
	// Action labels the audit events; defaults to ActionTransition.
	Action string
	// Override permits moves outside CanTransition (operator reset/force).
	Override bool
	// ClearLastError resets the job-level error on success.
	ClearLastError bool
}

// Commit applies every transition in c in one transaction. It fails with
// services.ErrStaleJob when the job is gone and services.ErrConflict when the
// job version or any stage's current status differs from what the caller
// observed. On success it returns the job's new version.
func (s *Store) Commit(ctx context.Context, c Commit) (int64, error) {
	if len(c.Transitions) == 0 {
		return 0, services.Wrap(services.ErrValidation, "", "commit", "no transitions", nil)
	}
	if !c.Override {
		for _, tr := range c.Transitions {
			if !CanTransition(tr.From, tr.To) {
				return 0, services.Wrap(services.ErrValidation, "", "commit",
					fmt.Sprintf("stage %d: illegal transition %s -> %s", tr.StageIndex, tr.From, tr.To), nil)
			}
		}
	}
	actor := c.Actor
	if actor == "" {
		actor = ActorDetector
	}
	action := c.Action
	if action == "" {
		action = ActionTransition
	}

	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now, next, err := s.bumpVersion(ctx, tx, c.JobID, c.ExpectVersion)
		if err != nil {
			return err
		}
		version = next
		for _, tr := range c.Transitions {
			name, err := applyTransition(ctx, tx, c.JobID, tr, now)
			if err != nil {
				return err
			}
			if err := insertEvent(ctx, tx, Event{
				JobID:      c.JobID,
				StageIndex: tr.StageIndex,
				Stage:      name,
				Action:     action,
				Actor:      actor,
				From:       tr.From,
				To:         tr.To,
				Detail:     firstNonEmpty(tr.Detail, tr.Error),
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		if c.ClearLastError {
			if _, err := tx.ExecContext(ctx, `UPDATE jobs SET last_error = NULL WHERE id = ?`, c.JobID); err != nil {
				return fmt.Errorf("clear last error: %w", err)
			}
		}
		return refreshStatus(ctx, tx, c.JobID)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// CommitStageTransition moves a single stage from one status to another. It is
// a narrow form of Commit without a version expectation; the stage's current
// status must still equal from.
func (s *Store) CommitStageTransition(ctx context.Context, jobID string, stageIndex int, from, to StageStatus, detail string) error {
	tr := Transition{StageIndex: stageIndex, From: from, To: to, Detail: detail}
	if to == StageFailed {
		tr.Error = detail
	}
	_, err := s.Commit(ctx, Commit{JobID: jobID, Transitions: []Transition{tr}})
	return err
}

func applyTransition(ctx context.Context, tx *sql.Tx, jobID string, tr Transition, now time.Time) (string, error) {
	var (
		query string
		args  []any
	)
	switch tr.To {
	case StageNotStarted:
		query = `UPDATE job_stages SET status = ?, instruction_written_at = NULL, completed_at = NULL,
                 failed_at = NULL, error_message = NULL`
		args = []any{tr.To}
	case StageInstructionWritten:
		query = `UPDATE job_stages SET status = ?, instruction_written_at = ?, completed_at = NULL,
                 failed_at = NULL, error_message = NULL`
		args = []any{tr.To, formatTime(now)}
	case StageCompleted:
		query = `UPDATE job_stages SET status = ?, completed_at = ?, failed_at = NULL, error_message = NULL`
		args = []any{tr.To, formatTime(now)}
	case StageFailed:
		query = `UPDATE job_stages SET status = ?, failed_at = ?, error_message = ?`
		args = []any{tr.To, formatTime(now), nullableString(tr.Error)}
	default:
		return "", services.Wrap(services.ErrValidation, "", "commit", fmt.Sprintf("unknown stage status %q", tr.To), nil)
	}
	query += ` WHERE job_id = ? AND stage_index = ? AND status = ?`
	args = append(args, jobID, tr.StageIndex, tr.From)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("update stage %d: %w", tr.StageIndex, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	var name string
	if err := tx.QueryRowContext(ctx,
		`SELECT name FROM job_stages WHERE job_id = ? AND stage_index = ?`, jobID, tr.StageIndex,
	).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", services.Wrap(services.ErrValidation, "", "commit", fmt.Sprintf("job %s has no stage %d", jobID, tr.StageIndex), nil)
		}
		return "", fmt.Errorf("lookup stage %d: %w", tr.StageIndex, err)
	}
	if affected != 1 {
		return "", services.Wrap(services.ErrConflict, name, "commit",
			fmt.Sprintf("stage is no longer %s", tr.From), nil)
	}
	return name, nil
}

// bumpVersion asserts the expected version and increments it, returning the
// commit timestamp and the new version.
func (s *Store) bumpVersion(ctx context.Context, tx *sql.Tx, jobID string, expect int64) (time.Time, int64, error) {
	var (
		current    int64
		updatedRaw string
	)
	err := tx.QueryRowContext(ctx, `SELECT version, updated_at FROM jobs WHERE id = ?`, jobID).Scan(&current, &updatedRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, 0, services.Wrap(services.ErrStaleJob, "", "commit", fmt.Sprintf("job %s not found", jobID), nil)
		}
		return time.Time{}, 0, fmt.Errorf("read job version: %w", err)
	}
	if expect > 0 && current != expect {
		return time.Time{}, 0, services.Wrap(services.ErrConflict, "", "commit",
			fmt.Sprintf("job %s version is %d, expected %d", jobID, current, expect), nil)
	}
	previous, _ := parseTimeString(updatedRaw)
	now := s.timestamp(previous)
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		formatTime(now), jobID, current,
	)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("bump job version: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return time.Time{}, 0, err
	} else if affected != 1 {
		return time.Time{}, 0, services.Wrap(services.ErrConflict, "", "commit", fmt.Sprintf("job %s changed concurrently", jobID), nil)
	}
	return now, current + 1, nil
}

func refreshStatus(ctx context.Context, tx *sql.Tx, jobID string) error {
	job, err := loadJob(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrStaleJob, "", "refresh status", jobID, nil)
	}
	status := deriveStatus(job.Stages, job.Cancelled)
	if status == job.Status {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, status, jobID); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// mutateJob bumps the job version and applies a job-level column update with
// an audit event.
func (s *Store) mutateJob(ctx context.Context, jobID string, expect int64, event Event, query string, args ...any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now, _, err := s.bumpVersion(ctx, tx, jobID, expect)
		if err != nil {
			return err
		}
		if query != "" {
			if _, err := tx.ExecContext(ctx, query, append(args, jobID)...); err != nil {
				return fmt.Errorf("update job %s: %w", jobID, err)
			}
		}
		if event.Action != "" {
			event.JobID = jobID
			event.CreatedAt = now
			if event.Actor == "" {
				event.Actor = ActorSystem
			}
			if err := insertEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return refreshStatus(ctx, tx, jobID)
	})
}

// SetCancelled marks a job cancelled. The detector stops advancing it; work the
// external agent already started is not interrupted.
func (s *Store) SetCancelled(ctx context.Context, jobID, actor, reason string) error {
	return s.mutateJob(ctx, jobID, 0,
		Event{StageIndex: -1, Action: ActionCancel, Actor: actor, Detail: reason},
		`UPDATE jobs SET cancelled = 1 WHERE id = ?`)
}

// RecordError stores the last non-terminal failure observed for a job.
func (s *Store) RecordError(ctx context.Context, jobID, message string) error {
	return s.mutateJob(ctx, jobID, 0,
		Event{StageIndex: -1, Action: ActionError, Actor: ActorSystem, Detail: message},
		`UPDATE jobs SET last_error = ? WHERE id = ?`, nullableString(message))
}

// SetCachedAnalysis memoizes an analysis result.
func (s *Store) SetCachedAnalysis(ctx context.Context, jobID, payload, actor string) error {
	return s.mutateJob(ctx, jobID, 0,
		Event{StageIndex: -1, Action: ActionAnalysis, Actor: actor, Detail: "cached"},
		`UPDATE jobs SET cached_analysis = ? WHERE id = ?`, nullableString(payload))
}

// ClearCachedAnalysis invalidates the memoized analysis.
func (s *Store) ClearCachedAnalysis(ctx context.Context, jobID, actor string) error {
	return s.mutateJob(ctx, jobID, 0,
		Event{StageIndex: -1, Action: ActionAnalysis, Actor: actor, Detail: "cleared"},
		`UPDATE jobs SET cached_analysis = NULL WHERE id = ?`)
}

// AppendEvent records an audit entry that does not change stage state, such
// as an instruction reissue. It still bumps the job version.
func (s *Store) AppendEvent(ctx context.Context, event Event, expect int64) error {
	return s.mutateJob(ctx, event.JobID, expect, event, "")
}

func insertEvent(ctx context.Context, tx *sql.Tx, event Event) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_events (job_id, stage_index, stage_name, action, actor, from_status, to_status, detail, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.JobID,
		event.StageIndex,
		nullableString(event.Stage),
		event.Action,
		event.Actor,
		nullableString(string(event.From)),
		nullableString(string(event.To)),
		nullableString(event.Detail),
		formatTime(event.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns the audit log for a job, oldest first.
func (s *Store) Events(ctx context.Context, jobID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+eventColumns+` FROM job_events WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
