package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tailor/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tailord.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	lines, offset, err := logs.Last(path, 2, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != 6 {
		t.Fatalf("expected offset 6, got %d", offset)
	}
}

func TestLastFiltersByJob(t *testing.T) {
	path := writeLog(t, "INFO job-1: issued\nINFO job-2: issued\nWARN job-1: stalled\n")

	lines, _, err := logs.Last(path, 10, logs.Filter{JobID: "job-1"})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[1] != "WARN job-1: stalled" {
		t.Fatalf("unexpected filtered lines: %#v", lines)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5, logs.Filter{})
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("expected empty result for missing file, got %v %d %v", lines, offset, err)
	}
}

func TestReadFromLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "one\ntw")

	lines, offset, err := logs.ReadFrom(path, 0, logs.Filter{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(lines) != 1 || lines[0] != "one" || offset != 4 {
		t.Fatalf("unexpected read: %#v offset=%d", lines, offset)
	}

	appendLog(t, path, "o\n")
	lines, _, err = logs.ReadFrom(path, offset, logs.Filter{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(lines) != 1 || lines[0] != "two" {
		t.Fatalf("expected completed line, got %#v", lines)
	}
}

func TestReadFromRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "fresh\n")

	lines, _, err := logs.ReadFrom(path, 500, logs.Filter{})
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(lines) != 1 || lines[0] != "fresh" {
		t.Fatalf("expected read from start, got %#v", lines)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.Last(path, 1, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, logs.Filter{}, func(line string) error {
			got <- line
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	appendLog(t, path, "later\n")

	select {
	case line := <-got:
		if line != "later" {
			t.Fatalf("unexpected followed line %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("follow did not emit the appended line")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Follow returned %v", err)
	}
}
