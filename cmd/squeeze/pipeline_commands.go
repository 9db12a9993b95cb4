package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"squeeze/internal/ipc"
)

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause [stage]",
		Short: "Pause the pipeline, or a single stage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := stageArg(args)
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Pause(stage); err != nil {
					return err
				}
				if stage == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Pipeline paused")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Stage %s paused\n", stage)
				}
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [stage]",
		Short: "Resume the pipeline, or a single stage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := stageArg(args)
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Resume(stage); err != nil {
					return err
				}
				if stage == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "Pipeline resumed")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Stage %s resumed\n", stage)
				}
				return nil
			})
		},
	}
}

func stageArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(args[0]))
}
