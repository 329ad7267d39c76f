package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	maxLineBytes   = 1024 * 1024
	followFallback = 500 * time.Millisecond
)

// Filter selects lines to emit. The zero value accepts every line.
type Filter struct {
	JobID string
}

func (f Filter) match(line string) bool {
	if f.JobID == "" {
		return true
	}
	return strings.Contains(line, f.JobID)
}

// Last returns up to limit trailing lines accepted by filter, plus the offset
// of the end of the file. A missing file yields no lines and offset 0.
func Last(path string, limit int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return nil, info.Size(), nil
	}

	ring := make([]string, limit)
	count, idx := 0, 0
	offset, err := scanLines(file, 0, func(line string) {
		if !filter.match(line) {
			return
		}
		ring[idx] = line
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	lines := make([]string, count)
	if count == limit {
		for i := range count {
			lines[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, offset, nil
}

// ReadFrom returns complete lines written after offset and the offset just
// past the last one. An offset beyond the end of the file restarts at 0.
func ReadFrom(path string, offset int64, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	next, err := scanLines(file, offset, func(line string) {
		if filter.match(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return nil, offset, err
	}
	return lines, next, nil
}

// Follow emits lines appended after offset until ctx ends or emit fails.
// Cancellation is not an error.
func Follow(ctx context.Context, path string, offset int64, filter Filter, emit func(string) error) error {
	wake, closeWatch := watchFile(path)
	defer closeWatch()

	ticker := time.NewTicker(followFallback)
	defer ticker.Stop()

	for {
		lines, next, err := ReadFrom(path, offset, filter)
		if err != nil {
			return err
		}
		offset = next
		for _, line := range lines {
			if err := emit(line); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-wake:
		case <-ticker.C:
		}
	}
}

// scanLines reads complete lines from r, which is positioned at start, and
// returns the offset after the last newline. A trailing partial line is left
// for the next read.
func scanLines(r io.Reader, start int64, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	offset := start
	for {
		chunk, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return offset, nil
			}
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(chunk))
		line := strings.TrimRight(chunk, "\r\n")
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes]
		}
		fn(line)
	}
}

// watchFile watches the directory holding path so rotation and creation are
// seen too. The returned channel never fires when watching is unavailable.
func watchFile(path string) (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return wake, func() {}
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return wake, func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return wake, func() {
		_ = watcher.Close()
		<-done
	}
}
