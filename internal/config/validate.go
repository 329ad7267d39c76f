package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkspaceRoot == "" {
		return errors.New("paths.workspace_root must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if !slices.Contains([]string{"docx", "pdf"}, c.Pipeline.RenderFormat) {
		return fmt.Errorf("pipeline.render_format must be docx or pdf, got %q", c.Pipeline.RenderFormat)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval_seconds":        c.Workflow.PollInterval,
		"workflow.error_retry_interval_seconds": c.Workflow.ErrorRetryInterval,
		"workflow.retry_budget":                 c.Workflow.RetryBudget,
		"workflow.max_parallel":                 c.Workflow.MaxParallel,
		"workflow.stall_timeout_seconds":        c.Workflow.StallTimeout,
		"workflow.lock_timeout_seconds":         c.Workflow.LockTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.OutputSettleSeconds < 0 {
		return errors.New("workflow.output_settle_seconds must not be negative")
	}
	if c.Workflow.OutputSettleSeconds >= c.Workflow.StallTimeout {
		return errors.New("workflow.output_settle_seconds must be less than workflow.stall_timeout_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"console", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout_seconds must not be negative")
	}
	return nil
}
