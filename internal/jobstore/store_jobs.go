package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"tailor/internal/services"
	"tailor/internal/workspace"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewJob describes a job to create.
type NewJob struct {
	// ID is generated when empty.
	ID     string
	Input  Input
	Stages []string
	Actor  string
}

// Create inserts a job with every stage not started.
func (s *Store) Create(ctx context.Context, spec NewJob) (*Job, error) {
	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if err := workspace.ValidateSegment("job id", id); err != nil {
		return nil, err
	}
	if err := validateInput(spec.Input); err != nil {
		return nil, err
	}
	if len(spec.Stages) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "create job", "at least one stage is required", nil)
	}
	seen := make(map[string]struct{}, len(spec.Stages))
	for _, name := range spec.Stages {
		if err := workspace.ValidateSegment("stage name", name); err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, services.Wrap(services.ErrValidation, name, "create job", "duplicate stage name", nil)
		}
		seen[name] = struct{}{}
	}
	inputJSON, err := json.Marshal(spec.Input)
	if err != nil {
		return nil, fmt.Errorf("encode job input: %w", err)
	}
	actor := spec.Actor
	if actor == "" {
		actor = ActorSystem
	}

	now := s.now()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM jobs WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("check job id: %w", err)
		}
		if exists > 0 {
			return services.Wrap(services.ErrConflict, "", "create job", fmt.Sprintf("job %s already exists", id), nil)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, status, version, input_json, cancelled, created_at, updated_at)
             VALUES (?, ?, 1, ?, 0, ?, ?)`,
			id, JobPending, string(inputJSON), formatTime(now), formatTime(now),
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		for idx, name := range spec.Stages {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_stages (job_id, stage_index, name, status) VALUES (?, ?, ?, ?)`,
				id, idx, name, StageNotStarted,
			); err != nil {
				return fmt.Errorf("insert stage %s: %w", name, err)
			}
		}
		return insertEvent(ctx, tx, Event{
			JobID:      id,
			StageIndex: -1,
			Action:     ActionCreated,
			Actor:      actor,
			Detail:     strings.Join(spec.Stages, ","),
			CreatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func validateInput(input Input) error {
	if strings.TrimSpace(input.ResumeText) == "" {
		return services.Wrap(services.ErrValidation, "", "create job", "resume text is required", nil)
	}
	if strings.TrimSpace(input.JobDescription) == "" {
		return services.Wrap(services.ErrValidation, "", "create job", "job description is required", nil)
	}
	return nil
}

// Get loads a job and its stages. It returns (nil, nil) when the job does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	return loadJob(ensureContext(ctx), s.db, id)
}

// loadJob reads the job row and its stages in a single statement so the
// returned snapshot is consistent with its Version.
func loadJob(ctx context.Context, q queryer, id string) (*Job, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+joinedColumns+`
        FROM jobs j LEFT JOIN job_stages st ON st.job_id = j.id
        WHERE j.id = ? ORDER BY st.stage_index`, id)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	defer rows.Close()

	var job *Job
	for rows.Next() {
		current, stage, err := scanJoined(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job %s: %w", id, err)
		}
		if job == nil {
			job = current
		}
		if stage != nil {
			job.Stages = append(job.Stages, *stage)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`

	ids, err := s.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// ActiveIDs returns the IDs of jobs that can still make progress.
func (s *Store) ActiveIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ensureContext(ctx),
		`SELECT id FROM jobs WHERE status IN (?, ?) ORDER BY created_at, id`,
		JobPending, JobRunning,
	)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Remove deletes a job record with its stages and events. Workspace files are
// left in place.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
