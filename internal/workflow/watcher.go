package workflow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"tailor/internal/logging"
	"tailor/internal/workspace"
)

// outputWatcher turns artifact writes in stage directories into Trigger
// calls. Events are hints; polling still guarantees progress.
type outputWatcher struct {
	layout  workspace.Layout
	trigger func(jobID string)
	logger  *slog.Logger
	w       *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string][]string // job id -> watched stage dirs
}

func newOutputWatcher(layout workspace.Layout, trigger func(string), logger *slog.Logger) (*outputWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &outputWatcher{
		layout:  layout,
		trigger: trigger,
		logger:  logging.NewComponentLogger(logger, "output-watcher"),
		w:       w,
		watched: make(map[string][]string),
	}, nil
}

func (o *outputWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-o.w.Events:
			if !ok {
				return
			}
			o.handle(event)
		case err, ok := <-o.w.Errors:
			if !ok {
				return
			}
			o.logger.Warn("filesystem watcher error", logging.Error(err))
		}
	}
}

func (o *outputWatcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	jobID, _, name, ok := o.layout.Resolve(event.Name)
	if !ok || name == "" || name == workspace.InstructionFileName || strings.HasPrefix(name, ".") {
		return
	}
	o.logger.Debug("artifact changed", logging.JobID(jobID), logging.String("path", event.Name))
	o.trigger(jobID)
}

// sync watches the stage directories of active jobs and drops watches for
// jobs that left the poll set.
func (o *outputWatcher) sync(jobIDs []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	active := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		active[id] = struct{}{}
		if _, ok := o.watched[id]; ok {
			continue
		}
		dirs := o.stageDirs(id)
		added := make([]string, 0, len(dirs))
		for _, dir := range dirs {
			if err := o.w.Add(dir); err != nil {
				o.logger.Debug("watch stage directory failed", logging.String("path", dir), logging.Error(err))
				continue
			}
			added = append(added, dir)
		}
		if len(added) > 0 {
			o.watched[id] = added
		}
	}
	for id, dirs := range o.watched {
		if _, ok := active[id]; ok {
			continue
		}
		for _, dir := range dirs {
			_ = o.w.Remove(dir)
		}
		delete(o.watched, id)
	}
}

func (o *outputWatcher) stageDirs(jobID string) []string {
	entries, err := os.ReadDir(o.layout.JobDir(jobID))
	if err != nil {
		return nil
	}
	dirs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, filepath.Join(o.layout.JobDir(jobID), entry.Name()))
		}
	}
	return dirs
}

func (o *outputWatcher) close() {
	if err := o.w.Close(); err != nil {
		o.logger.Debug("close watcher", logging.Error(err))
	}
}
