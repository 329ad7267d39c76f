package jobstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const joinedColumns = "j.id, j.status, j.version, j.input_json, j.cached_analysis, j.cancelled, j.last_error, j.created_at, j.updated_at, " +
	"st.stage_index, st.name, st.status, st.instruction_written_at, st.completed_at, st.failed_at, st.error_message"

const eventColumns = "id, job_id, stage_index, stage_name, action, actor, from_status, to_status, detail, created_at"

type scanner interface{ Scan(dest ...any) error }

func scanJoined(row scanner) (*Job, *StageState, error) {
	var (
		job         Job
		statusStr   string
		inputRaw    string
		analysis    sql.NullString
		cancelled   int
		lastError   sql.NullString
		createdRaw  string
		updatedRaw  string
		stageIndex  sql.NullInt64
		stageName   sql.NullString
		stageStatus sql.NullString
		instruction sql.NullString
		completed   sql.NullString
		failed      sql.NullString
		errorMsg    sql.NullString
	)
	if err := row.Scan(
		&job.ID, &statusStr, &job.Version, &inputRaw, &analysis, &cancelled, &lastError, &createdRaw, &updatedRaw,
		&stageIndex, &stageName, &stageStatus, &instruction, &completed, &failed, &errorMsg,
	); err != nil {
		return nil, nil, err
	}
	job.Status = JobStatus(statusStr)
	if err := json.Unmarshal([]byte(inputRaw), &job.Input); err != nil {
		return nil, nil, fmt.Errorf("decode input for job %s: %w", job.ID, err)
	}
	job.CachedAnalysis = analysis.String
	job.Cancelled = cancelled != 0
	job.LastError = lastError.String
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	if !stageIndex.Valid {
		return &job, nil, nil
	}
	stage := &StageState{
		Index:                int(stageIndex.Int64),
		Name:                 stageName.String,
		Status:               StageStatus(stageStatus.String),
		InstructionWrittenAt: parseNullableTime(instruction),
		CompletedAt:          parseNullableTime(completed),
		FailedAt:             parseNullableTime(failed),
		Error:                errorMsg.String,
	}
	return &job, stage, nil
}

func scanEvent(row scanner) (Event, error) {
	var (
		event      Event
		stageName  sql.NullString
		from       sql.NullString
		to         sql.NullString
		detail     sql.NullString
		createdRaw string
	)
	if err := row.Scan(&event.ID, &event.JobID, &event.StageIndex, &stageName, &event.Action, &event.Actor, &from, &to, &detail, &createdRaw); err != nil {
		return Event{}, err
	}
	event.Stage = stageName.String
	event.From = StageStatus(from.String)
	event.To = StageStatus(to.String)
	event.Detail = detail.String
	if created, err := parseTimeString(createdRaw); err == nil {
		event.CreatedAt = created
	}
	return event, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
