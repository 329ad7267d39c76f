package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tailor/internal/jobstore"
	"tailor/internal/workspace"
)

type workspaceDir struct {
	JobID    string `json:"jobId"`
	Path     string `json:"path"`
	Modified string `json:"modified"`
	Size     int64  `json:"sizeBytes"`
	Tracked  bool   `json:"tracked"`
}

type pruneReport struct {
	Removed []workspaceDir `json:"removed"`
	Skipped []workspaceDir `json:"skipped"`
	Errors  []string       `json:"errors,omitempty"`
}

func newWorkspaceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Inspect and clean the job workspace",
	}
	cmd.AddCommand(newWorkspaceListCommand(ctx))
	cmd.AddCommand(newWorkspacePruneCommand(ctx))
	return cmd
}

func newWorkspaceListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List job directories and whether a job record still exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, known, err := ctx.workspaceState(cmd)
			if err != nil {
				return err
			}
			dirs, err := layout.ListJobDirs()
			if err != nil {
				return fmt.Errorf("list workspace: %w", err)
			}
			views := make([]workspaceDir, 0, len(dirs))
			for _, dir := range dirs {
				_, tracked := known[dir.JobID]
				views = append(views, toWorkspaceDir(dir, tracked))
			}
			return ctx.emit(cmd, views, func(w io.Writer) error {
				if len(views) == 0 {
					fmt.Fprintln(w, "Workspace is empty")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						v.JobID,
						yesNo(v.Tracked),
						humanize.IBytes(uint64(v.Size)),
						formatDisplayTime(v.Modified),
					})
				}
				fmt.Fprint(w, renderTable([]string{"Job", "Tracked", "Size", "Modified"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newWorkspacePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove job directories whose job record no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			layout, known, err := ctx.workspaceState(cmd)
			if err != nil {
				return err
			}
			result, err := layout.Prune(known, olderThan, time.Now(), ctx.logger())
			if err != nil {
				return fmt.Errorf("prune workspace: %w", err)
			}

			report := pruneReport{}
			for _, dir := range result.Removed {
				report.Removed = append(report.Removed, toWorkspaceDir(dir, false))
			}
			for _, dir := range result.Skipped {
				report.Skipped = append(report.Skipped, toWorkspaceDir(dir, false))
			}
			for _, e := range result.Errors {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", e.Path, e.Err))
			}
			return ctx.emit(cmd, report, func(w io.Writer) error {
				var freed int64
				for _, dir := range report.Removed {
					fmt.Fprintf(w, "Removed %s\n", dir.Path)
					freed += dir.Size
				}
				for _, dir := range report.Skipped {
					fmt.Fprintf(w, "Skipped %s (job lock held)\n", dir.Path)
				}
				for _, msg := range report.Errors {
					fmt.Fprintf(w, "Failed %s\n", msg)
				}
				fmt.Fprintf(w, "Pruned %d director%s, freed %s\n",
					len(report.Removed), pluralSuffix(len(report.Removed)), humanize.IBytes(uint64(freed)))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Only remove directories unchanged for this long")
	return cmd
}

// workspaceState returns the workspace layout and the IDs the store knows.
func (c *commandContext) workspaceState(cmd *cobra.Command) (workspace.Layout, map[string]struct{}, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return workspace.Layout{}, nil, err
	}
	store, err := jobstore.Open(cfg)
	if err != nil {
		return workspace.Layout{}, nil, err
	}
	defer store.Close()

	jobs, err := store.List(cmd.Context())
	if err != nil {
		return workspace.Layout{}, nil, err
	}
	known := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		known[job.ID] = struct{}{}
	}
	return workspace.New(cfg.Paths.WorkspaceRoot), known, nil
}

func toWorkspaceDir(dir workspace.JobDirInfo, tracked bool) workspaceDir {
	modified := ""
	if !dir.ModTime.IsZero() {
		modified = dir.ModTime.UTC().Format(time.RFC3339)
	}
	return workspaceDir{
		JobID:    dir.JobID,
		Path:     dir.Path,
		Modified: modified,
		Size:     dir.Size,
		Tracked:  tracked,
	}
}

func pluralSuffix(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
