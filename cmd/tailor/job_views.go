package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tailor/internal/api"
	"tailor/internal/jobstore"
)

var titleCaser = cases.Title(language.English)

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func buildJobStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stats))
	seen := make(map[string]bool, len(stats))
	for _, status := range jobstore.AllJobStatuses() {
		key := string(status)
		seen[key] = true
		if count := stats[key]; count > 0 {
			rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(count)})
		}
	}
	extra := make([]string, 0)
	for key := range stats {
		if !seen[key] && stats[key] > 0 {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(stats[key])})
	}
	return rows
}

func buildJobListRows(jobs []api.Job, colorize bool) [][]string {
	if len(jobs) == 0 {
		return nil
	}
	sorted := make([]api.Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := parseAPITime(sorted[i].CreatedAt)
		tj := parseAPITime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID < sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		rows = append(rows, []string{
			job.ID,
			colorStatus(job.Status, colorize),
			dashIfEmpty(job.ActiveStage),
			stageProgress(job.Stages),
			jobLabel(job.Input),
			formatDisplayTime(job.UpdatedAt),
		})
	}
	return rows
}

func buildStageRows(stages []api.Stage, colorize bool) [][]string {
	rows := make([][]string, 0, len(stages))
	for _, st := range stages {
		changed := st.CompletedAt
		if changed == "" {
			changed = st.FailedAt
		}
		if changed == "" {
			changed = st.InstructionWrittenAt
		}
		rows = append(rows, []string{
			strconv.Itoa(st.Index),
			st.Name,
			colorStatus(st.Status, colorize),
			formatDisplayTime(changed),
			dashIfEmpty(st.Error),
		})
	}
	return rows
}

func buildEventRows(events []api.Event) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		change := ""
		if ev.From != "" || ev.To != "" {
			change = fmt.Sprintf("%s -> %s", dashIfEmpty(ev.From), dashIfEmpty(ev.To))
		}
		rows = append(rows, []string{
			formatDisplayTime(ev.CreatedAt),
			ev.Action,
			dashIfEmpty(ev.Stage),
			dashIfEmpty(change),
			ev.Actor,
			dashIfEmpty(ev.Detail),
		})
	}
	return rows
}

func jobDetailPairs(job api.Job) [][2]string {
	pairs := [][2]string{
		{"ID", job.ID},
		{"Status", formatStatusLabel(job.Status)},
		{"Active stage", dashIfEmpty(job.ActiveStage)},
		{"Version", strconv.FormatInt(job.Version, 10)},
		{"Cancelled", yesNo(job.Cancelled)},
		{"Analysis cached", yesNo(job.HasAnalysis)},
	}
	if label := jobLabel(job.Input); label != "-" {
		pairs = append(pairs, [2]string{"Target", label})
	}
	if job.Input.Style != "" {
		pairs = append(pairs, [2]string{"Style", job.Input.Style})
	}
	if job.LastError != "" {
		pairs = append(pairs, [2]string{"Last error", job.LastError})
	}
	pairs = append(pairs,
		[2]string{"Created", formatDisplayTime(job.CreatedAt)},
		[2]string{"Updated", formatDisplayTime(job.UpdatedAt)},
	)
	return pairs
}

func analysisPairs(a api.Analysis) [][2]string {
	pairs := [][2]string{
		{"Job", a.JobID},
		{"Resume score", scoreLine(a.Resume)},
	}
	if a.Enhanced != nil {
		pairs = append(pairs,
			[2]string{"Enhanced score", scoreLine(*a.Enhanced)},
			[2]string{"Delta", fmt.Sprintf("%+d", a.Delta)},
		)
	}
	if len(a.Resume.Missing) > 0 {
		pairs = append(pairs, [2]string{"Missing terms", strings.Join(a.Resume.Missing, ", ")})
	}
	if a.Enhanced != nil && len(a.Enhanced.Missing) > 0 {
		pairs = append(pairs, [2]string{"Still missing", strings.Join(a.Enhanced.Missing, ", ")})
	}
	source := "computed"
	if a.Cached {
		source = "cached"
	}
	pairs = append(pairs, [2]string{"Computed", fmt.Sprintf("%s (%s)", formatDisplayTime(a.ComputedAt), source)})
	return pairs
}

func scoreLine(s api.Score) string {
	return fmt.Sprintf("%d (coverage %.0f%%, similarity %.2f)", s.Value, s.Coverage*100, s.Similarity)
}

// describeResult renders a detector result as one line.
func describeResult(r api.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.JobID, strings.ReplaceAll(r.Outcome, "_", " "))
	if len(r.Completed) > 0 {
		fmt.Fprintf(&b, "; completed %s", strings.Join(r.Completed, ", "))
	}
	if r.Issued != "" {
		fmt.Fprintf(&b, "; instruction issued for %s", r.Issued)
	}
	if r.Failed != "" {
		fmt.Fprintf(&b, "; %s failed", r.Failed)
	}
	if r.ActiveStage != "" && r.Issued == "" {
		fmt.Fprintf(&b, "; waiting on %s", r.ActiveStage)
	}
	if r.Stalled {
		fmt.Fprintf(&b, " (stalled %s)", r.StalledFor)
	}
	return b.String()
}

func stageProgress(stages []api.Stage) string {
	done := 0
	for _, st := range stages {
		if st.Status == string(jobstore.StageCompleted) {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(stages))
}

func jobLabel(in api.JobInput) string {
	parts := make([]string, 0, 3)
	for _, v := range []string{in.CandidateName, in.TargetRole, in.Company} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " / ")
}

func parseAPITime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatDisplayTime(value string) string {
	t := parseAPITime(value)
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
