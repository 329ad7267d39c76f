package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tailor/internal/daemonctl"
	"tailor/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tailor daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				return ctx.emitMessage(cmd, "Daemon started (pid %d)", result.PID)
			default:
				return ctx.emitMessage(cmd, "Daemon already running (pid %d)", result.PID)
			}
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the tailor daemon (terminates the process)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return ctx.emitMessage(cmd, "Daemon is not running")
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				return ctx.emitMessage(cmd, "Daemon stopped (pid %d killed after grace period)", result.PID)
			}
			return ctx.emitMessage(cmd, "Daemon stopped")
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, workspace and job status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			return ctx.emit(cmd, snapshot, func(w io.Writer) error {
				writeStatus(w, snapshot, shouldColorize(w))
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tailor daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Development logging (source locations)")
	return cmd
}

func writeStatus(w io.Writer, snapshot *daemonctl.Snapshot, colorize bool) {
	out := newStatusWriter(w, colorize)

	out.section("Daemon", true)
	switch {
	case snapshot.Reachable && snapshot.Running:
		out.line("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", snapshot.PID))
	case snapshot.Reachable:
		out.line("Daemon", statusWarn, fmt.Sprintf("Stopped (pid %d)", snapshot.PID))
	default:
		out.line("Daemon", statusWarn, "Not running")
	}
	out.line("Database", statusInfo, snapshot.DatabasePath)
	out.line("Workspace", statusInfo, snapshot.WorkspaceRoot)
	if snapshot.MetricsBind != "" {
		out.line("Metrics", statusInfo, snapshot.MetricsBind)
	}
	if wf := snapshot.Workflow; snapshot.Reachable {
		if wf.LastPoll != "" {
			out.line("Last poll", statusInfo, formatDisplayTime(wf.LastPoll))
		}
		if wf.LastError != "" {
			out.line("Last error", statusError, wf.LastError)
		}
	}

	if len(snapshot.Checks) > 0 {
		out.section("Checks", false)
		for _, check := range snapshot.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			out.line(check.Name, kind, check.Detail)
		}
	}

	if stalled := snapshot.Workflow.Stalled; len(stalled) > 0 {
		out.section("Stalled", false)
		for _, r := range stalled {
			out.line(r.JobID, statusWarn, fmt.Sprintf("%s waiting %s", r.ActiveStage, r.StalledFor))
		}
	}

	out.section("Jobs", false)
	rows := buildJobStatusRows(snapshot.Workflow.JobStats)
	if len(rows) == 0 {
		out.text("No jobs")
		return
	}
	fmt.Fprint(w, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	var opts daemonctl.LaunchOptions
	if ctx.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*ctx.configFlag)
	}
	return opts
}
