package ipc

import "tailor/internal/api"

// ServiceName is the JSON-RPC service prefix.
const ServiceName = "Tailor"

// Job mirrors the API job DTO for IPC callers.
type Job = api.Job

// Event mirrors the API event DTO.
type Event = api.Event

// Result mirrors the API detector result DTO.
type Result = api.Result

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	api.DaemonStatus
}

// StopRequest stops daemon workflow.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// JobListRequest filters job listing by status.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
}

// JobListResponse contains job entries.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobShowRequest fetches a single job by id.
type JobShowRequest struct {
	ID         string `json:"id"`
	WithEvents bool   `json:"with_events"`
}

// JobShowResponse contains a single job and optionally its audit log.
type JobShowResponse struct {
	Job    Job     `json:"job"`
	Events []Event `json:"events,omitempty"`
}

// AdvanceRequest runs the detector for one job.
type AdvanceRequest struct {
	ID string `json:"id"`
}

// AdvanceResponse carries the detector result.
type AdvanceResponse struct {
	Result Result `json:"result"`
}

// TriggerRequest wakes the poller. An empty ID wakes a full poll.
type TriggerRequest struct {
	ID string `json:"id"`
}

// TriggerResponse acknowledges a trigger.
type TriggerResponse struct {
	Queued bool `json:"queued"`
}
