package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobInput is the request data a job was created with.
type JobInput struct {
	CandidateName  string `json:"candidateName,omitempty"`
	TargetRole     string `json:"targetRole,omitempty"`
	Company        string `json:"company,omitempty"`
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription"`
	Style          string `json:"style,omitempty"`
	RenderFormat   string `json:"renderFormat,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Stage describes one pipeline stage of a job.
type Stage struct {
	Index                int    `json:"index"`
	Name                 string `json:"name"`
	Status               string `json:"status"`
	InstructionPath      string `json:"instructionPath"`
	OutputPath           string `json:"outputPath,omitempty"`
	InstructionWrittenAt string `json:"instructionWrittenAt,omitempty"`
	CompletedAt          string `json:"completedAt,omitempty"`
	FailedAt             string `json:"failedAt,omitempty"`
	Error                string `json:"error,omitempty"`
}

// Job describes a job record in a transport-friendly format.
type Job struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Version     int64    `json:"version"`
	ActiveStage string   `json:"activeStage,omitempty"`
	Cancelled   bool     `json:"cancelled"`
	LastError   string   `json:"lastError,omitempty"`
	HasAnalysis bool     `json:"hasAnalysis"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
	Input       JobInput `json:"input"`
	Stages      []Stage  `json:"stages"`
}

// Event is one audit log entry.
type Event struct {
	ID        int64  `json:"id"`
	JobID     string `json:"jobId"`
	Stage     string `json:"stage,omitempty"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Result reports the effect of one CheckAndAdvance call.
type Result struct {
	JobID       string   `json:"jobId"`
	Outcome     string   `json:"outcome"`
	ActiveStage string   `json:"activeStage,omitempty"`
	Completed   []string `json:"completed,omitempty"`
	Issued      string   `json:"issued,omitempty"`
	Failed      string   `json:"failed,omitempty"`
	Stalled     bool     `json:"stalled"`
	StalledFor  string   `json:"stalledFor,omitempty"`
	Version     int64    `json:"version,omitempty"`
}

// WorkflowStatus summarizes poller state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	JobStats   map[string]int `json:"jobStats"`
	LastError  string         `json:"lastError,omitempty"`
	LastResult *Result        `json:"lastResult,omitempty"`
	LastPoll   string         `json:"lastPoll,omitempty"`
	Stalled    []Result       `json:"stalled,omitempty"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	DatabasePath  string         `json:"databasePath"`
	LockFilePath  string         `json:"lockFilePath"`
	WorkspaceRoot string         `json:"workspaceRoot"`
	MetricsBind   string         `json:"metricsBind,omitempty"`
	Workflow      WorkflowStatus `json:"workflow"`
}

// Score is one resume's match against the job description.
type Score struct {
	Value      int      `json:"value"`
	Coverage   float64  `json:"coverage"`
	Similarity float64  `json:"similarity"`
	Matched    []string `json:"matchedTerms,omitempty"`
	Missing    []string `json:"missingTerms,omitempty"`
}

// Analysis is a match analysis for a job.
type Analysis struct {
	JobID      string `json:"jobId"`
	Resume     Score  `json:"resume"`
	Enhanced   *Score `json:"enhanced,omitempty"`
	Delta      int    `json:"delta"`
	ComputedAt string `json:"computedAt"`
	Cached     bool   `json:"cached"`
}
