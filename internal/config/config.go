package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkspaceRoot string `toml:"workspace_root"`
	StateDir      string `toml:"state_dir"`
	LogDir        string `toml:"log_dir"`
	MetricsBind   string `toml:"metrics_bind"`
}

// Pipeline controls which stages new jobs receive and their instruction defaults.
type Pipeline struct {
	RenderDocuments bool   `toml:"render_documents"`
	RenderFormat    string `toml:"render_format"`
	DefaultStyle    string `toml:"default_style"`
}

// Workflow contains configuration for detector timing, retries and concurrency.
// Durations are whole seconds.
type Workflow struct {
	PollInterval        int  `toml:"poll_interval_seconds"`
	ErrorRetryInterval  int  `toml:"error_retry_interval_seconds"`
	RetryBudget         int  `toml:"retry_budget"`
	MaxParallel         int  `toml:"max_parallel"`
	StallTimeout        int  `toml:"stall_timeout_seconds"`
	FailStalled         bool `toml:"fail_stalled"`
	OutputSettleSeconds int  `toml:"output_settle_seconds"`
	WatchFilesystem     bool `toml:"watch_filesystem"`
	LockTimeout         int  `toml:"lock_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications configures ntfy delivery of job milestones. An empty topic
// disables notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout_seconds"`
}

// Config encapsulates all configuration values for tailor.
//
// Configuration sections by subsystem:
//   - Paths: workspace root, daemon state, logs and metrics bind address
//   - Pipeline: optional render stage and instruction defaults
//   - Workflow: poll cadence, retry budget, stall policy and locking
//   - Logging: log format, level, and retention
//   - Notifications: optional ntfy topic for completed, failed and stalled jobs
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	if value, ok := os.LookupEnv(envConfigPath); ok && strings.TrimSpace(value) != "" {
		return resolveConfigPath(strings.TrimSpace(value))
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tailor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceRoot, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the job record store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "tailor.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "tailor.sock")
}

// DaemonLockPath returns the single-instance lock file location.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "tailord.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "tailord.pid")
}

func (w Workflow) PollIntervalDuration() time.Duration { return seconds(w.PollInterval) }

func (w Workflow) ErrorRetryDuration() time.Duration { return seconds(w.ErrorRetryInterval) }

func (w Workflow) StallTimeoutDuration() time.Duration { return seconds(w.StallTimeout) }

func (w Workflow) OutputSettleDuration() time.Duration { return seconds(w.OutputSettleSeconds) }

func (w Workflow) LockTimeoutDuration() time.Duration { return seconds(w.LockTimeout) }

func (n Notifications) RequestTimeoutDuration() time.Duration { return seconds(n.RequestTimeout) }

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Render encodes the configuration as TOML.
func (c *Config) Render() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
