package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tailor/internal/config"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/notifications"
)

const defaultPollInterval = 5 * time.Second

// Manager polls active jobs and drives them through the detector.
type Manager struct {
	cfg      *config.Config
	store    *jobstore.Store
	detector *Detector
	logger   *slog.Logger
	metrics  *Metrics
	notifier notifications.Service

	pollInterval time.Duration
	retryDelay   time.Duration
	retryBudget  int
	maxParallel  int

	wake chan struct{}

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastErr    error
	lastResult *Result
	lastPoll   time.Time
	triggered  map[string]struct{}
	pollAll    bool
	stalled    map[string]Result
	watcher    *outputWatcher
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithNotifier publishes completed jobs, failed stages and newly stalled
// stages through n.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// NewManager constructs a poller around detector. metrics may be nil.
func NewManager(cfg *config.Config, store *jobstore.Store, detector *Detector, logger *slog.Logger, metrics *Metrics, opts ...ManagerOption) *Manager {
	pollInterval := cfg.Workflow.PollIntervalDuration()
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxParallel := cfg.Workflow.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	retryBudget := cfg.Workflow.RetryBudget
	if retryBudget <= 0 {
		retryBudget = 1
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		detector:     detector,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		metrics:      metrics,
		pollInterval: pollInterval,
		retryDelay:   cfg.Workflow.ErrorRetryDuration(),
		retryBudget:  retryBudget,
		maxParallel:  maxParallel,
		wake:         make(chan struct{}, 1),
		triggered:    make(map[string]struct{}),
		stalled:      make(map[string]Result),
		notifier:     notifications.NewService(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Detector returns the detector the manager drives.
func (m *Manager) Detector() *Detector { return m.detector }
