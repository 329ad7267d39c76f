package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tailor/internal/api"
	"tailor/internal/daemon"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/services"
)

// service holds the exported RPC methods. Every method returns errors through
// encodeError so clients can recover the failure marker.
type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via ipc", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	st := s.daemon.Status(s.ctx)
	resp.DaemonStatus = api.DaemonStatus{
		Running:       st.Running,
		PID:           st.PID,
		DatabasePath:  st.DatabasePath,
		LockFilePath:  st.LockFilePath,
		WorkspaceRoot: st.WorkspaceRoot,
		MetricsBind:   st.MetricsBind,
		Workflow:      api.FromStatusSummary(st.Workflow),
	}
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	statuses, err := ParseStatuses(req.Statuses)
	if err != nil {
		return encodeError(err)
	}
	jobs, err := s.daemon.ListJobs(s.ctx, statuses)
	if err != nil {
		return encodeError(err)
	}
	resp.Jobs = api.FromJobs(jobs, s.daemon.Pipeline())
	return nil
}

func (s *service) JobShow(req JobShowRequest, resp *JobShowResponse) error {
	id, err := requireID(req.ID)
	if err != nil {
		return encodeError(err)
	}
	job, err := s.daemon.GetJob(s.ctx, id)
	if err != nil {
		return encodeError(err)
	}
	resp.Job = api.FromJob(job, s.daemon.Pipeline())
	if !req.WithEvents {
		return nil
	}
	events, err := s.daemon.Events(s.ctx, id)
	if err != nil {
		return encodeError(err)
	}
	resp.Events = api.FromEvents(events)
	return nil
}

func (s *service) Advance(req AdvanceRequest, resp *AdvanceResponse) error {
	id, err := requireID(req.ID)
	if err != nil {
		return encodeError(err)
	}
	result, err := s.daemon.Advance(services.WithActor(s.ctx, jobstore.ActorOperator), id)
	if err != nil {
		return encodeError(err)
	}
	resp.Result = api.FromResult(result)
	return nil
}

func (s *service) Trigger(req TriggerRequest, resp *TriggerResponse) error {
	s.daemon.Trigger(strings.TrimSpace(req.ID))
	resp.Queued = true
	return nil
}

func requireID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", services.Wrap(services.ErrValidation, "", "", "job id is required", nil)
	}
	return id, nil
}

// ParseStatuses converts status filters, rejecting unknown values.
func ParseStatuses(values []string) ([]jobstore.JobStatus, error) {
	statuses := make([]jobstore.JobStatus, 0, len(values))
	for _, value := range values {
		parsed, ok := jobstore.ParseJobStatus(value)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "", "parse status", fmt.Sprintf("unknown job status %q", value), nil)
		}
		statuses = append(statuses, parsed)
	}
	return statuses, nil
}
