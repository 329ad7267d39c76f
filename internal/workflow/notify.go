package workflow

import (
	"context"
	"strings"

	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/notifications"
	"tailor/internal/services"
)

// notify publishes milestones from one detector result. Delivery failures are
// logged and never affect the job.
func (m *Manager) notify(ctx context.Context, result Result, newlyStalled bool) {
	var (
		event   notifications.Event
		payload = notifications.Payload{"jobID": result.JobID}
	)
	switch {
	case result.Outcome == OutcomeFailed:
		event = notifications.EventStageFailed
		payload["stage"] = result.Failed
	case result.Outcome == OutcomeAdvanced && result.ActiveStage == "":
		event = notifications.EventJobCompleted
	case newlyStalled:
		event = notifications.EventStageStalled
		payload["stage"] = result.ActiveStage
		payload["waiting"] = result.StalledFor
	default:
		return
	}

	if job, err := m.store.Get(ctx, result.JobID); err == nil && job != nil {
		payload["label"] = jobLabel(job.Input)
		if idx := job.StageIndex(result.Failed); event == notifications.EventStageFailed && idx >= 0 {
			payload["reason"] = job.Stages[idx].Error
		}
	}

	m.publish(ctx, result.JobID, event, payload)
}

func (m *Manager) notifyError(ctx context.Context, jobID string, err error) {
	m.publish(ctx, jobID, notifications.EventError, notifications.Payload{
		"jobID":   jobID,
		"context": "job " + jobID,
		"error":   err,
	})
}

func (m *Manager) publish(ctx context.Context, jobID string, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		logger := logging.WithContext(services.WithJobID(ctx, jobID), m.logger)
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}

func jobLabel(in jobstore.Input) string {
	parts := make([]string, 0, 2)
	for _, v := range []string{in.CandidateName, in.Company} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " / ")
}
