// Package daemonrun hosts the tailor daemon process: logging, pid file,
// store, poller, metrics registry, and the IPC socket.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tailor/internal/config"
	"tailor/internal/daemon"
	"tailor/internal/ipc"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/notifications"
	"tailor/internal/pipeline"
	"tailor/internal/preflight"
	"tailor/internal/services"
	"tailor/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the tailor daemon and blocks until SIGINT/SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.LogLevel != "" {
		if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
			return err
		}
	}
	logOpts := logging.DaemonOptions(cfg, opts.LogLevel, opts.Development)
	logger, logFile, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logFile.Close()
	ctx := services.WithRequestID(signalCtx, uuid.NewString())

	logging.PruneLogs(logger, cfg.Paths.LogDir, "*.log", cfg.Logging.RetentionDays, logOpts.File, time.Now())
	preflight.LogResults(logger, preflight.RunAll(ctx, cfg))

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobstore.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := workflow.NewMetrics(registry)
	stages, err := pipeline.Default(cfg.Pipeline)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build pipeline: %w", err)
	}
	detector := workflow.NewDetector(cfg, store, stages, logger, workflow.WithMetrics(metrics))
	manager := workflow.NewManager(cfg, store, detector, logger, metrics,
		workflow.WithNotifier(notifications.NewService(cfg)))
	logConfigSnapshot(logger, cfg, detector.Pipeline())

	d, err := daemon.New(cfg, store, logger, manager, registry)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("tailor daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config, pipe *pipeline.Pipeline) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("workspace_root", cfg.Paths.WorkspaceRoot),
		logging.String("database", cfg.DatabasePath()),
		logging.Any("stages", pipe.Names()),
		logging.Duration("poll_interval", cfg.Workflow.PollIntervalDuration()),
		logging.Duration("stall_timeout", cfg.Workflow.StallTimeoutDuration()),
		logging.Bool("fail_stalled", cfg.Workflow.FailStalled),
		logging.Bool("watch_filesystem", cfg.Workflow.WatchFilesystem),
		logging.Int("max_parallel", cfg.Workflow.MaxParallel),
		logging.String("metrics_bind", cfg.Paths.MetricsBind),
	)
}
