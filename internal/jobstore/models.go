package jobstore

import (
	"strings"
	"time"
)

// StageStatus is the lifecycle of a single stage.
type StageStatus string

const (
	StageNotStarted         StageStatus = "not_started"
	StageInstructionWritten StageStatus = "instruction_written"
	StageCompleted          StageStatus = "completed"
	StageFailed             StageStatus = "failed"
)

var allStageStatuses = []StageStatus{StageNotStarted, StageInstructionWritten, StageCompleted, StageFailed}

// ParseStageStatus converts a string into a known StageStatus.
func ParseStageStatus(value string) (StageStatus, bool) {
	normalized := StageStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStageStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further automatic transition can leave the status.
func (s StageStatus) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to StageStatus) bool {
	switch from {
	case StageNotStarted:
		return to == StageInstructionWritten || to == StageFailed
	case StageInstructionWritten:
		return to == StageCompleted || to == StageFailed
	default:
		return false
	}
}

// JobStatus is the job-level summary derived from stage statuses and the
// cancellation flag. It is persisted so listings can filter on it.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var allJobStatuses = []JobStatus{JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled}

// AllJobStatuses returns the ordered list of job statuses.
func AllJobStatuses() []JobStatus {
	return append([]JobStatus(nil), allJobStatuses...)
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allJobStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Input is the request data a job was created with.
type Input struct {
	CandidateName  string `json:"candidate_name,omitempty"`
	TargetRole     string `json:"target_role,omitempty"`
	Company        string `json:"company,omitempty"`
	ResumeText     string `json:"resume_text"`
	JobDescription string `json:"job_description"`
	Style          string `json:"style,omitempty"`
	RenderFormat   string `json:"render_format,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// StageState is the persisted state of one pipeline stage.
type StageState struct {
	Index                int
	Name                 string
	Status               StageStatus
	InstructionWrittenAt *time.Time
	CompletedAt          *time.Time
	FailedAt             *time.Time
	Error                string
}

// Job is the durable record for one content-generation request.
type Job struct {
	ID             string
	Status         JobStatus
	Version        int64
	Input          Input
	Stages         []StageState
	CachedAnalysis string
	Cancelled      bool
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActiveStage returns the index of the first stage that is not completed, or
// -1 when every stage is completed.
func (j *Job) ActiveStage() int {
	for i, stage := range j.Stages {
		if stage.Status != StageCompleted {
			return i
		}
	}
	return -1
}

// StageIndex returns the index of the named stage or -1.
func (j *Job) StageIndex(name string) int {
	for i, stage := range j.Stages {
		if stage.Name == name {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether the job can make no further automatic progress.
func (j *Job) IsTerminal() bool {
	switch deriveStatus(j.Stages, j.Cancelled) {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// StageNames returns the ordered stage names.
func (j *Job) StageNames() []string {
	names := make([]string, len(j.Stages))
	for i, stage := range j.Stages {
		names[i] = stage.Name
	}
	return names
}

func deriveStatus(stages []StageState, cancelled bool) JobStatus {
	if cancelled {
		return JobCancelled
	}
	allDone, allFresh := len(stages) > 0, true
	for _, stage := range stages {
		switch stage.Status {
		case StageFailed:
			return JobFailed
		case StageCompleted:
			allFresh = false
		case StageInstructionWritten:
			allDone, allFresh = false, false
		default:
			allDone = false
		}
	}
	switch {
	case allDone:
		return JobCompleted
	case allFresh:
		return JobPending
	default:
		return JobRunning
	}
}

// Event actors.
const (
	ActorDetector = "detector"
	ActorOperator = "operator"
	ActorSystem   = "system"
)

// Event actions.
const (
	ActionCreated    = "created"
	ActionTransition = "transition"
	ActionReset      = "reset"
	ActionForce      = "force"
	ActionReissue    = "reissue"
	ActionAccept     = "accept_output"
	ActionCancel     = "cancel"
	ActionAnalysis   = "analysis"
	ActionError      = "error"
)

// Event is one audit log entry.
type Event struct {
	ID         int64
	JobID      string
	StageIndex int
	Stage      string
	Action     string
	Actor      string
	From       StageStatus
	To         StageStatus
	Detail     string
	CreatedAt  time.Time
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	MissingTables    []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
