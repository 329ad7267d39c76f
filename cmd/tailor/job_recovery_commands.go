package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tailor/internal/api"
	"tailor/internal/jobstore"
	"tailor/internal/services"
	"tailor/internal/workflow"
)

func newJobRecoveryCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newJobResetCommand(ctx),
		newJobForceCommand(ctx),
		newJobAcceptCommand(ctx),
		newJobReissueCommand(ctx),
		newJobCancelCommand(ctx),
		newJobClearAnalysisCommand(ctx),
		newJobRemoveCommand(ctx),
	}
}

func newJobResetCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reset <job-id> <stage>",
		Short: "Return a stage and every later stage to not started",
		Long: "Archives the instruction and output of the stage and every later stage\n" +
			"under its history directory, then marks them not started. The next\n" +
			"detector pass writes a fresh instruction.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, stage := args[0], args[1]
			err := ctx.withOperator(cmd, id, func(opCtx context.Context, op *workflow.Operator) error {
				return op.ResetStage(opCtx, id, stage, reason)
			})
			if err != nil {
				return err
			}
			return ctx.emitMessage(cmd, "Reset %s of job %s", stage, id)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the event log")
	return cmd
}

func newJobForceCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "force <job-id> <stage> <completed|failed>",
		Short: "Force a stage to completed or failed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, stage := args[0], args[1]
			target, ok := jobstore.ParseStageStatus(args[2])
			if !ok || (target != jobstore.StageCompleted && target != jobstore.StageFailed) {
				return services.Wrap(services.ErrValidation, stage, "force stage",
					fmt.Sprintf("invalid target %q; use completed or failed", args[2]), nil)
			}
			err := ctx.withOperator(cmd, id, func(opCtx context.Context, op *workflow.Operator) error {
				return op.ForceStage(opCtx, id, stage, target, reason)
			})
			if err != nil {
				return err
			}
			return ctx.emitMessage(cmd, "Forced %s of job %s to %s", stage, id, target)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the event log")
	return cmd
}

func newJobAcceptCommand(ctx *commandContext) *cobra.Command {
	var fromPath string

	cmd := &cobra.Command{
		Use:   "accept <job-id> <stage>",
		Short: "Supply a stage's output by hand and advance the job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, stage := args[0], args[1]
			content, err := readInputFile(cmd, "output", fromPath)
			if err != nil {
				return err
			}
			var result workflow.Result
			err = ctx.withOperator(cmd, id, func(opCtx context.Context, op *workflow.Operator) error {
				var acceptErr error
				result, acceptErr = op.AcceptOutput(opCtx, id, stage, []byte(content))
				return acceptErr
			})
			if err != nil {
				return err
			}
			dto := api.FromResult(result)
			return ctx.emit(cmd, dto, func(w io.Writer) error {
				fmt.Fprintf(w, "Accepted output for %s\n", stage)
				fmt.Fprintln(w, describeResult(dto))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&fromPath, "file", "f", "", "Output file, or - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newJobReissueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reissue <job-id> <stage>",
		Short: "Rewrite the instruction of a stage waiting on the agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, stage := args[0], args[1]
			var written bool
			err := ctx.withOperator(cmd, id, func(opCtx context.Context, op *workflow.Operator) error {
				var reissueErr error
				written, reissueErr = op.ReissueInstruction(opCtx, id, stage)
				return reissueErr
			})
			if err != nil {
				return err
			}
			if !written {
				return ctx.emitMessage(cmd, "Instruction for %s is unchanged", stage)
			}
			return ctx.emitMessage(cmd, "Rewrote instruction for %s", stage)
		},
	}
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Stop advancing a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			err := ctx.withOperator(cmd, id, func(opCtx context.Context, op *workflow.Operator) error {
				return op.Cancel(opCtx, id, reason)
			})
			if err != nil {
				return err
			}
			return ctx.emitMessage(cmd, "Cancelled job %s", id)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded in the event log")
	return cmd
}

func newJobClearAnalysisCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-analysis <job-id>",
		Short: "Drop a job's cached match analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			err := ctx.withOperator(cmd, "", func(opCtx context.Context, op *workflow.Operator) error {
				return op.ClearAnalysis(opCtx, id)
			})
			if err != nil {
				return err
			}
			return ctx.emitMessage(cmd, "Cleared analysis for job %s", id)
		},
	}
}

func newJobRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Delete a job record; its workspace directory is kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			err := ctx.withOperator(cmd, "", func(opCtx context.Context, op *workflow.Operator) error {
				return op.Remove(opCtx, id)
			})
			if err != nil {
				return err
			}
			return ctx.emitMessage(cmd, "Removed job %s", id)
		},
	}
}
