package testsupport

import (
	"path/filepath"
	"testing"

	"tailor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceRoot = filepath.Join(base, "workspace")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Workflow.PollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Workflow.LockTimeout = 2
	cfgVal.Workflow.WatchFilesystem = false

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRenderStage enables the optional render stage.
func WithRenderStage() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.RenderDocuments = true
	}
}

// WithStallTimeout sets the stall timeout and whether stalled stages fail.
func WithStallTimeout(seconds int, fail bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.StallTimeout = seconds
		b.cfg.Workflow.FailStalled = fail
	}
}

// WithRetryBudget overrides the per-call retry budget.
func WithRetryBudget(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.RetryBudget = attempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceRoot)
}
