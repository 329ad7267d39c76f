package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"tailor/internal/logging"
)

// Start begins background polling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	if m.cfg.Workflow.WatchFilesystem {
		watcher, err := newOutputWatcher(m.detector.Layout(), m.Trigger, m.logger)
		if err != nil {
			logging.WarnWithContext(m.logger, "filesystem watcher unavailable; relying on polling", "watcher_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_instances or disable workflow.watch_filesystem"),
				logging.String(logging.FieldImpact, "output detection waits for the next poll"),
			)
		} else {
			m.watcher = watcher
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				watcher.run(runCtx)
			}()
		}
	}
	watching := m.watcher != nil
	m.wg.Add(1)
	m.mu.Unlock()

	go m.loop(runCtx)
	m.logger.Info("workflow started",
		logging.Duration("poll_interval", m.pollInterval),
		logging.Int("max_parallel", m.maxParallel),
		logging.Bool("watch_filesystem", watching),
		logging.String(logging.FieldEventType, "workflow_started"),
	)
	return nil
}

// Stop terminates background polling and waits for in-flight calls.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if watcher != nil {
		watcher.close()
	}
}

// Trigger schedules jobID for an early check, or a full poll when jobID is
// empty. It never blocks.
func (m *Manager) Trigger(jobID string) {
	m.mu.Lock()
	if jobID == "" {
		m.pollAll = true
	} else {
		m.triggered[jobID] = struct{}{}
	}
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	m.PollOnce(ctx)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.PollOnce(ctx)
		case <-m.wake:
			m.runTriggered(ctx)
		}
	}
}

// PollOnce runs one poll cycle over every active job.
func (m *Manager) PollOnce(ctx context.Context) {
	ids, err := m.store.ActiveIDs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.setLastError(err)
		logging.ErrorWithContext(m.logger, "failed to list active jobs", "poll_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
		return
	}
	m.advanceAll(ctx, ids)

	m.mu.Lock()
	m.lastPoll = m.detector.now()
	active := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		active[id] = struct{}{}
	}
	for id := range m.stalled {
		if _, ok := active[id]; !ok {
			delete(m.stalled, id)
		}
	}
	stalled := len(m.stalled)
	watcher := m.watcher
	m.mu.Unlock()

	m.metrics.setPollGauges(len(ids), stalled)
	if watcher != nil {
		watcher.sync(ids)
	}
}

func (m *Manager) runTriggered(ctx context.Context) {
	m.mu.Lock()
	if m.pollAll {
		m.pollAll = false
		m.triggered = make(map[string]struct{})
		m.mu.Unlock()
		m.PollOnce(ctx)
		return
	}
	ids := make([]string, 0, len(m.triggered))
	for id := range m.triggered {
		ids = append(ids, id)
	}
	m.triggered = make(map[string]struct{})
	m.mu.Unlock()
	sort.Strings(ids)
	m.advanceAll(ctx, ids)
}

// advanceAll checks jobs concurrently, bounded by workflow.max_parallel. Each
// job appears once, so calls for the same job never overlap here.
func (m *Manager) advanceAll(ctx context.Context, ids []string) {
	var g errgroup.Group
	g.SetLimit(m.maxParallel)
	for _, id := range ids {
		g.Go(func() error {
			m.advanceJob(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) advanceJob(ctx context.Context, jobID string) {
	result, err := m.Advance(ctx, jobID)
	if err != nil {
		m.handleAdvanceError(ctx, jobID, err)
		return
	}
	newlyStalled := m.recordResult(result)
	m.notify(ctx, result, newlyStalled)
}
