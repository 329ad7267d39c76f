package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"tailor/internal/config"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/workflow"
)

// Daemon coordinates the background poller and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobstore.Store
	workflow *workflow.Manager
	operator *workflow.Operator
	metrics  *metricsServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Workflow      workflow.StatusSummary
	DatabasePath  string
	LockFilePath  string
	WorkspaceRoot string
	MetricsBind   string
}

// New constructs a daemon with initialized dependencies. gatherer backs the
// metrics endpoint; nil disables it even when a bind address is configured.
func New(cfg *config.Config, store *jobstore.Store, logger *slog.Logger, wf *workflow.Manager, gatherer prometheus.Gatherer) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		operator: workflow.NewOperator(wf.Detector(), logger),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if gatherer != nil {
		d.metrics = newMetricsServer(cfg.Paths.MetricsBind, gatherer, d, logger)
	}
	return d, nil
}

// Start launches the workflow manager and acquires the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another tailor daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.metrics.start(d.ctx); err != nil {
		logging.WarnWithContext(d.logger, "metrics endpoint unavailable", "metrics_listen_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.metrics_bind for a port conflict"),
			logging.String(logging.FieldImpact, "metrics are not scraped; job processing continues"),
		)
	}

	d.running.Store(true)
	d.logger.Info("tailor daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.metrics.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("tailor daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Pipeline returns the stage definitions jobs are advanced through.
func (d *Daemon) Pipeline() *pipeline.Pipeline {
	return d.workflow.Detector().Pipeline()
}

// Operator returns the operator bound to the daemon's locks and store.
func (d *Daemon) Operator() *workflow.Operator {
	return d.operator
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []jobstore.JobStatus) ([]*jobstore.Job, error) {
	return d.store.List(ctx, statuses...)
}

// GetJob returns a job or a not found error.
func (d *Daemon) GetJob(ctx context.Context, id string) (*jobstore.Job, error) {
	job, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get job", fmt.Sprintf("job %s not found", id), nil)
	}
	return job, nil
}

// Events returns a job's audit log.
func (d *Daemon) Events(ctx context.Context, id string) ([]jobstore.Event, error) {
	return d.store.Events(ctx, id)
}

// Advance runs the detector for one job with the poller's retry policy.
func (d *Daemon) Advance(ctx context.Context, id string) (workflow.Result, error) {
	return d.workflow.Advance(ctx, id)
}

// Trigger wakes the poller for one job without waiting.
func (d *Daemon) Trigger(id string) {
	d.workflow.Trigger(id)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		Workflow:      d.workflow.Status(ctx),
		DatabasePath:  d.store.Path(),
		LockFilePath:  d.lockPath,
		WorkspaceRoot: d.cfg.Paths.WorkspaceRoot,
		MetricsBind:   d.metrics.address(),
	}
}
