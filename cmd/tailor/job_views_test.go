package main

import (
	"strings"
	"testing"

	"tailor/internal/api"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"instruction_written": "Instruction Written",
		"running":             "Running",
		" ":                   "",
	}
	for in, want := range cases {
		if got := formatStatusLabel(in); got != want {
			t.Errorf("formatStatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildJobStatusRowsOrder(t *testing.T) {
	rows := buildJobStatusRows(map[string]int{"failed": 1, "pending": 2, "mystery": 1, "completed": 0})
	var labels []string
	for _, row := range rows {
		labels = append(labels, row[0])
	}
	if got := strings.Join(labels, ","); got != "Pending,Failed,Mystery" {
		t.Fatalf("unexpected row order: %s", got)
	}
	if buildJobStatusRows(nil) != nil {
		t.Fatal("expected nil rows for empty stats")
	}
}

func TestBuildJobListRowsNewestFirst(t *testing.T) {
	jobs := []api.Job{
		{ID: "old", Status: "completed", CreatedAt: "2026-01-01T10:00:00.000Z", Stages: []api.Stage{{Status: "completed"}}},
		{ID: "new", Status: "running", ActiveStage: "enhance", CreatedAt: "2026-02-01T10:00:00.000Z",
			Stages: []api.Stage{{Status: "instruction_written"}, {Status: "not_started"}}},
	}
	rows := buildJobListRows(jobs, false)
	if len(rows) != 2 || rows[0][0] != "new" || rows[1][0] != "old" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if rows[0][2] != "enhance" || rows[0][3] != "0/2" || rows[1][2] != "-" || rows[1][3] != "1/1" {
		t.Fatalf("unexpected columns: %v", rows)
	}
}

func TestDescribeResult(t *testing.T) {
	got := describeResult(api.Result{
		JobID:     "j1",
		Outcome:   "advanced",
		Completed: []string{"enhance"},
		Issued:    "cover-letter",
	})
	want := "j1: advanced; completed enhance; instruction issued for cover-letter"
	if got != want {
		t.Fatalf("describeResult = %q, want %q", got, want)
	}

	stalled := describeResult(api.Result{JobID: "j2", Outcome: "pending", ActiveStage: "enhance", Stalled: true, StalledFor: "2h0m0s"})
	if !strings.Contains(stalled, "waiting on enhance") || !strings.Contains(stalled, "stalled 2h0m0s") {
		t.Fatalf("unexpected stalled description: %q", stalled)
	}
}

func TestColorStatusPlainWhenDisabled(t *testing.T) {
	if got := colorStatus("failed", false); got != "failed" {
		t.Fatalf("colorStatus without color = %q", got)
	}
	if got := colorStatus("failed", true); !strings.HasPrefix(got, ansiRed) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected red failed status, got %q", got)
	}
}
