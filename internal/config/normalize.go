package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv(envWorkspaceRoot); ok && strings.TrimSpace(value) != "" {
		c.Paths.WorkspaceRoot = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv(envStateDir); ok && strings.TrimSpace(value) != "" {
		c.Paths.StateDir = strings.TrimSpace(value)
	}

	var err error
	if c.Paths.WorkspaceRoot, err = expandPath(strings.TrimSpace(c.Paths.WorkspaceRoot)); err != nil {
		return fmt.Errorf("paths.workspace_root: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" && c.Paths.StateDir != "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, defaultLogDirName)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.MetricsBind = strings.TrimSpace(c.Paths.MetricsBind)
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.RenderFormat = strings.ToLower(strings.TrimSpace(c.Pipeline.RenderFormat))
	if c.Pipeline.RenderFormat == "" {
		c.Pipeline.RenderFormat = defaultRenderFormat
	}
	c.Pipeline.DefaultStyle = strings.ToLower(strings.TrimSpace(c.Pipeline.DefaultStyle))
	if c.Pipeline.DefaultStyle == "" {
		c.Pipeline.DefaultStyle = defaultStyle
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
