package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tailor/internal/api"
	"tailor/internal/config"
	"tailor/internal/jobaccess"
	"tailor/internal/jobstore"
	"tailor/internal/workflow"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Create, inspect and recover jobs",
	}

	jobCmd.AddCommand(newJobCreateCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobEventsCommand(ctx))
	jobCmd.AddCommand(newJobAdvanceCommand(ctx))
	jobCmd.AddCommand(newJobAnalyzeCommand(ctx))
	for _, cmd := range newJobRecoveryCommands(ctx) {
		jobCmd.AddCommand(cmd)
	}

	return jobCmd
}

func newJobCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		id, resumePath, jdPath string
		in                     jobstore.Input
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job and issue its first instruction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resume, err := readInputFile(cmd, "resume", resumePath)
			if err != nil {
				return err
			}
			jd, err := readInputFile(cmd, "job description", jdPath)
			if err != nil {
				return err
			}
			input := in
			input.ResumeText = resume
			input.JobDescription = jd

			var job *jobstore.Job
			var result workflow.Result
			err = ctx.withOperator(cmd, "", func(opCtx context.Context, op *workflow.Operator) error {
				var submitErr error
				job, result, submitErr = op.Submit(opCtx, workflow.Submission{ID: id, Input: input})
				return submitErr
			})
			if err != nil {
				return err
			}
			ctx.notifyDaemon(job.ID)

			payload := struct {
				Job    api.Job    `json:"job"`
				Result api.Result `json:"result"`
			}{Result: api.FromResult(result)}
			if err := ctx.withAccess(func(access jobaccess.Access) error {
				dto, _, describeErr := access.Describe(cmd.Context(), job.ID, false)
				if describeErr == nil {
					payload.Job = *dto
				}
				return describeErr
			}); err != nil {
				return err
			}
			return ctx.emit(cmd, payload, func(w io.Writer) error {
				fmt.Fprintf(w, "Created job %s\n", job.ID)
				fmt.Fprintln(w, describeResult(payload.Result))
				for _, st := range payload.Job.Stages {
					if st.Status == string(jobstore.StageInstructionWritten) {
						fmt.Fprintf(w, "Instruction: %s\n", st.InstructionPath)
					}
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&id, "id", "", "Job ID (generated when empty)")
	flags.StringVar(&resumePath, "resume", "", "Resume text file, or - for stdin")
	flags.StringVar(&jdPath, "job-description", "", "Job description text file, or - for stdin")
	flags.StringVar(&in.CandidateName, "candidate", "", "Candidate name")
	flags.StringVar(&in.TargetRole, "role", "", "Target role")
	flags.StringVar(&in.Company, "company", "", "Target company")
	flags.StringVar(&in.Style, "style", "", "Writing style (defaults to pipeline.default_style)")
	flags.StringVar(&in.RenderFormat, "format", "", "Render format for the render stage (docx or pdf)")
	flags.StringVar(&in.Notes, "notes", "", "Free-form notes included in instructions")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job-description")
	return cmd
}

func readInputFile(cmd *cobra.Command, label, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read %s from stdin: %w", label, err)
		}
		return string(data), nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s path: %w", label, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return string(data), nil
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access jobaccess.Access) error {
				jobs, err := access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if jobs == nil {
					jobs = []api.Job{}
				}
				return ctx.emit(cmd, jobs, func(w io.Writer) error {
					if len(jobs) == 0 {
						fmt.Fprintln(w, "No jobs")
						return nil
					}
					fmt.Fprint(w, renderTable(
						[]string{"ID", "Status", "Active", "Stages", "Target", "Updated"},
						buildJobListRows(jobs, shouldColorize(w)),
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (pending, running, completed, failed, cancelled)")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var withEvents bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access jobaccess.Access) error {
				job, events, err := access.Describe(cmd.Context(), args[0], withEvents)
				if err != nil {
					return err
				}
				payload := struct {
					Job    api.Job     `json:"job"`
					Events []api.Event `json:"events,omitempty"`
				}{Job: *job, Events: events}
				return ctx.emit(cmd, payload, func(w io.Writer) error {
					colorize := shouldColorize(w)
					fmt.Fprint(w, renderDetails(jobDetailPairs(*job)))
					fmt.Fprintln(w)
					fmt.Fprint(w, renderTable(
						[]string{"#", "Stage", "Status", "Changed", "Error"},
						buildStageRows(job.Stages, colorize),
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
					))
					if withEvents {
						fmt.Fprintln(w)
						writeEvents(w, events)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&withEvents, "events", "e", false, "Include the job's event log")
	return cmd
}

func newJobEventsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "events <job-id>",
		Short: "Show a job's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access jobaccess.Access) error {
				_, events, err := access.Describe(cmd.Context(), args[0], true)
				if err != nil {
					return err
				}
				if events == nil {
					events = []api.Event{}
				}
				return ctx.emit(cmd, events, func(w io.Writer) error {
					writeEvents(w, events)
					return nil
				})
			})
		},
	}
}

func writeEvents(w io.Writer, events []api.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events")
		return
	}
	fmt.Fprint(w, renderTable(
		[]string{"Time", "Action", "Stage", "Change", "Actor", "Detail"},
		buildEventRows(events),
		nil,
	))
}

func newJobAdvanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <job-id>",
		Short: "Check the workspace and advance a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access jobaccess.Access) error {
				result, err := access.Advance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, result, func(w io.Writer) error {
					fmt.Fprintln(w, describeResult(result))
					return nil
				})
			})
		},
	}
}

func newJobAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "analyze <job-id>",
		Short: "Score the resume and enhanced resume against the job description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			var payload api.Analysis
			err := ctx.withOperator(cmd, "", func(opCtx context.Context, op *workflow.Operator) error {
				report, cached, err := op.Analyze(opCtx, id, refresh)
				if err != nil {
					return err
				}
				payload = api.FromReport(id, report, cached)
				return nil
			})
			if err != nil {
				return err
			}
			return ctx.emit(cmd, payload, func(w io.Writer) error {
				fmt.Fprint(w, renderDetails(analysisPairs(payload)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Recompute even when a cached analysis exists")
	return cmd
}
