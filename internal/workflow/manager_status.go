package workflow

import (
	"context"
	"sort"
	"time"

	"tailor/internal/jobstore"
	"tailor/internal/logging"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastResult *Result
	LastPoll   time.Time
	JobStats   map[jobstore.JobStatus]int
	Stalled    []Result
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, LastPoll: m.lastPoll}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastResult != nil {
		snapshot := *m.lastResult
		summary.LastResult = &snapshot
	}
	for _, result := range m.stalled {
		summary.Stalled = append(summary.Stalled, result)
	}
	m.mu.RUnlock()

	sort.Slice(summary.Stalled, func(i, j int) bool {
		return summary.Stalled[i].JobID < summary.Stalled[j].JobID
	})

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats
	return summary
}
