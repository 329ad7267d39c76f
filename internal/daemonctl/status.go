package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tailor/internal/api"
	"tailor/internal/config"
	"tailor/internal/ipc"
	"tailor/internal/jobstore"
	"tailor/internal/preflight"
)

const storeQueryTimeout = 2 * time.Second

// Snapshot is the status view rendered by "tailor status".
type Snapshot struct {
	api.DaemonStatus
	Reachable bool               `json:"reachable"`
	Checks    []preflight.Result `json:"checks,omitempty"`
}

// BuildStatusSnapshot asks a running daemon for its status. Job counts come
// from the store when the daemon is offline. The job database health check
// always reads the store directly.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}
	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		if resp, statusErr := client.Status(); statusErr == nil {
			snapshot.DaemonStatus = resp.DaemonStatus
			snapshot.Reachable = true
		}
		_ = client.Close()
	}
	if !snapshot.Reachable {
		snapshot.DatabasePath = cfg.DatabasePath()
		snapshot.LockFilePath = cfg.DaemonLockPath()
		snapshot.WorkspaceRoot = cfg.Paths.WorkspaceRoot
	}

	queryCtx, cancel := context.WithTimeout(ctx, storeQueryTimeout)
	defer cancel()

	checks := preflight.RunAll(ctx, cfg)
	store, err := jobstore.Open(cfg)
	if err != nil {
		checks = append(checks, preflight.Result{Name: "Job database", Detail: err.Error()})
		snapshot.Checks = checks
		return snapshot, nil
	}
	defer store.Close()

	checks = append(checks, databaseCheck(queryCtx, store))
	snapshot.Checks = checks

	if !snapshot.Reachable {
		if stats, statsErr := store.Stats(queryCtx); statsErr == nil {
			snapshot.Workflow.JobStats = make(map[string]int, len(stats))
			for status, count := range stats {
				snapshot.Workflow.JobStats[string(status)] = count
			}
		}
	}
	return snapshot, nil
}

func databaseCheck(ctx context.Context, store *jobstore.Store) preflight.Result {
	result := preflight.Result{Name: "Job database"}
	health, err := store.CheckHealth(ctx)
	switch {
	case err != nil:
		result.Detail = fmt.Sprintf("%s (error: %v)", health.DBPath, err)
	case len(health.MissingTables) > 0:
		result.Detail = fmt.Sprintf("%s (missing tables: %s)", health.DBPath, strings.Join(health.MissingTables, ", "))
	case !health.IntegrityCheck:
		result.Detail = fmt.Sprintf("%s (integrity check failed)", health.DBPath)
	default:
		result.Passed = true
		result.Detail = fmt.Sprintf("%s (schema v%d, %d jobs)", health.DBPath, health.SchemaVersion, health.TotalJobs)
	}
	return result
}
