package preflight

import (
	"context"
	"log/slog"

	"tailor/internal/config"
	"tailor/internal/logging"
)

// minFreeBytes is the free-space floor below which the workspace check fails.
const minFreeBytes = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Workspace root", cfg.Paths.WorkspaceRoot),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Workspace free space", cfg.Paths.WorkspaceRoot, minFreeBytes),
	}
	if cfg.Paths.LogDir != "" && cfg.Paths.LogDir != cfg.Paths.StateDir {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	if err := ctx.Err(); err != nil {
		results = append(results, Result{Name: "Preflight", Detail: err.Error()})
	}
	return results
}

// LogResults writes one line per result: info when passed, warn otherwise.
// It returns the number of failed checks.
func LogResults(logger *slog.Logger, results []Result) int {
	failed := 0
	for _, result := range results {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		failed++
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the path or permissions in the [paths] config section"),
			logging.String(logging.FieldImpact, "jobs touching this path will record I/O errors"),
		)
	}
	return failed
}
