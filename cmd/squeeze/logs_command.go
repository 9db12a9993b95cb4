package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"squeeze/internal/ipc"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return streamLogs(cmd, client, lines, follow)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new log lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of trailing lines to print first")
	return cmd
}

// streamLogs drives the daemon's log tail endpoint. The first request asks
// for the trailing window; afterwards the returned offset is replayed so
// follow mode only ships new lines.
func streamLogs(cmd *cobra.Command, client *ipc.Client, lines int, follow bool) error {
	out := cmd.OutOrStdout()

	limit := lines
	if limit < 0 {
		limit = 0
	}
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}

	printed := false
	for {
		resp, err := client.LogTail(ipc.LogTailRequest{
			Offset:     offset,
			Limit:      limit,
			Follow:     follow,
			WaitMillis: 1000,
		})
		if err != nil {
			return err
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(out, line)
			printed = true
		}
		offset = resp.Offset
		limit = 0

		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}

		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
	}
}
