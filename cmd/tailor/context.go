package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"tailor/internal/config"
	"tailor/internal/ipc"
	"tailor/internal/jobaccess"
	"tailor/internal/jobstore"
	"tailor/internal/logging"
	"tailor/internal/pipeline"
	"tailor/internal/services"
	"tailor/internal/workflow"
)

type commandContext struct {
	socketFlag *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(socketFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		socketFlag: socketFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) socketPath() string {
	if c.socketFlag != nil && strings.TrimSpace(*c.socketFlag) != "" {
		return strings.TrimSpace(*c.socketFlag)
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	return ""
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

// withAccess runs fn against the daemon when it answers, otherwise against
// the job store directly.
func (c *commandContext) withAccess(fn func(jobaccess.Access) error) error {
	session, err := jobaccess.OpenWithFallback(c.dialClient, c.openStore)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

func (c *commandContext) openStore() (*jobstore.Store, *workflow.Detector, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	stages, err := pipeline.Default(cfg.Pipeline)
	if err != nil {
		return nil, nil, err
	}
	store, err := jobstore.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	detector := workflow.NewDetector(cfg, store, stages, c.logger())
	return store, detector, nil
}

// withOperator runs an operator action in this process under the caller's
// user name, then asks a running daemon to re-check jobID when it is set.
func (c *commandContext) withOperator(cmd *cobra.Command, jobID string, fn func(context.Context, *workflow.Operator) error) error {
	store, detector, err := c.openStore()
	if err != nil {
		return err
	}
	operator := workflow.NewOperator(detector, c.logger())
	ctx := services.WithActor(cmd.Context(), operatorName())
	runErr := fn(ctx, operator)
	closeErr := store.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}
	if jobID != "" {
		c.notifyDaemon(jobID)
	}
	return nil
}

// notifyDaemon is best effort; the poller picks the change up regardless.
func (c *commandContext) notifyDaemon(jobID string) {
	client, err := ipc.Dial(c.socketPath())
	if err != nil {
		return
	}
	defer client.Close()
	_, _ = client.Trigger(jobID)
}

func (c *commandContext) logger() *slog.Logger {
	format := "console"
	if cfg := c.configValue(); cfg != nil && cfg.Logging.Format != "" {
		format = cfg.Logging.Format
	}
	logger, _, err := logging.New(logging.Options{
		Level:   "warn",
		Format:  format,
		Console: os.Stderr,
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func operatorName() string {
	if u, err := user.Current(); err == nil && strings.TrimSpace(u.Username) != "" {
		return u.Username
	}
	if name := strings.TrimSpace(os.Getenv("USER")); name != "" {
		return name
	}
	return jobstore.ActorOperator
}

func wrapDialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT) || os.IsNotExist(err):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `tailor start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// exitCode maps error markers to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return 2
	case errors.Is(err, services.ErrNotFound):
		return 3
	case errors.Is(err, services.ErrTransient), errors.Is(err, services.ErrConflict):
		return 4
	default:
		return 1
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
