package workspace

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"tailor/internal/logging"
)

// JobDirInfo describes one job directory under the workspace root.
type JobDirInfo struct {
	JobID   string
	Path    string
	ModTime time.Time
	Size    int64
}

// PruneResult lists directories removed by Prune and those that failed.
type PruneResult struct {
	Removed []JobDirInfo
	Skipped []JobDirInfo
	Errors  []PruneError
}

// PruneError pairs a directory with its removal error.
type PruneError struct {
	Path string
	Err  error
}

// ListJobDirs returns every job directory sorted by job ID. A missing root
// yields an empty list.
func (l Layout) ListJobDirs() ([]JobDirInfo, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	dirs := make([]JobDirInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || ValidateSegment("job id", entry.Name()) != nil {
			continue
		}
		path := l.JobDir(entry.Name())
		modTime, size := treeStats(path)
		dirs = append(dirs, JobDirInfo{
			JobID:   entry.Name(),
			Path:    path,
			ModTime: modTime,
			Size:    size,
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].JobID < dirs[j].JobID })
	return dirs, nil
}

// Prune removes job directories that have no record in known and have not
// changed for maxAge. Directories whose job lock is held are skipped.
func (l Layout) Prune(known map[string]struct{}, maxAge time.Duration, now time.Time, logger *slog.Logger) (PruneResult, error) {
	var result PruneResult
	dirs, err := l.ListJobDirs()
	if err != nil {
		return result, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	cutoff := now.Add(-maxAge)
	for _, dir := range dirs {
		if _, ok := known[dir.JobID]; ok || dir.ModTime.After(cutoff) {
			continue
		}

		lock := flock.New(l.LockPath(dir.JobID))
		locked, err := lock.TryLock()
		if err != nil || !locked {
			result.Skipped = append(result.Skipped, dir)
			continue
		}
		removeErr := os.RemoveAll(dir.Path)
		_ = lock.Unlock()

		if removeErr != nil {
			result.Errors = append(result.Errors, PruneError{Path: dir.Path, Err: removeErr})
			logger.Warn("failed to remove orphaned job directory",
				logging.String("path", dir.Path),
				logging.Error(removeErr),
				logging.String(logging.FieldEventType, "workspace_prune_failed"),
				logging.String(logging.FieldErrorHint, "check workspace_root permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir)
		logger.Info("removed orphaned job directory",
			logging.String("path", dir.Path),
			logging.Duration("age", now.Sub(dir.ModTime)),
			logging.String(logging.FieldEventType, "workspace_prune"),
		)
	}
	return result, nil
}

// treeStats returns the newest modification time and total file size below
// path. The job directory's own mtime and the lock file are ignored, since
// taking the lock touches both; the directory mtime is used only when
// nothing else is found. Unreadable entries are ignored.
func treeStats(path string) (time.Time, int64) {
	var (
		newest  time.Time
		rootMod time.Time
		size    int64
	)
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if p == path {
			rootMod = info.ModTime()
			return nil
		}
		if d.Name() == lockFileName && filepath.Dir(p) == path {
			return nil
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		if !d.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if newest.IsZero() {
		newest = rootMod
	}
	return newest, size
}
