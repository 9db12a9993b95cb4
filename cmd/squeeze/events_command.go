package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"squeeze/internal/api"
	"squeeze/internal/events"
	"squeeze/internal/ipc"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print pipeline events from the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				return streamEvents(cmd, client, limit, follow, ctx.JSONMode())
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().IntVar(&limit, "limit", 50, "Number of recent events to print first")
	return cmd
}

func streamEvents(cmd *cobra.Command, client *ipc.Client, limit int, follow, jsonMode bool) error {
	out := cmd.OutOrStdout()

	resp, err := client.EventsTail(ipc.EventsTailRequest{Limit: limit})
	if err != nil {
		return err
	}

	if jsonMode && !follow {
		eventsOut := resp.Events
		if eventsOut == nil {
			eventsOut = []ipc.Event{}
		}
		return writeJSON(cmd, eventsOut)
	}

	printEvents(out, resp.Events, jsonMode)
	next := resp.Next

	if !follow {
		if len(resp.Events) == 0 {
			fmt.Fprintln(out, "No events recorded")
		}
		return nil
	}

	for {
		resp, err := client.EventsTail(ipc.EventsTailRequest{
			Since:      next,
			Wait:       true,
			WaitMillis: 1000,
		})
		if err != nil {
			return err
		}
		printEvents(out, resp.Events, jsonMode)
		next = resp.Next

		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
	}
}

// printEvents writes events one per line. In JSON mode each event becomes a
// compact object so follow output stays machine-parseable line by line.
func printEvents(out io.Writer, batch []ipc.Event, jsonMode bool) {
	for _, evt := range batch {
		if jsonMode {
			encoded, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintln(out, string(encoded))
			continue
		}
		fmt.Fprintln(out, formatEventLine(evt))
	}
}

func formatEventLine(evt api.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s", evt.Sequence, formatDisplayTime(evt.Timestamp))

	switch events.Kind(evt.Kind) {
	case events.KindItemState:
		fmt.Fprintf(&sb, " item %d %s -> %s", evt.ItemID, evt.From, evt.To)
		if evt.Stage != "" {
			fmt.Fprintf(&sb, " (%s)", evt.Stage)
		}
	case events.KindStageStatus:
		fmt.Fprintf(&sb, " stage %s %s", evt.Stage, evt.To)
	case events.KindFailure:
		fmt.Fprintf(&sb, " failure item %d stage %s category %s", evt.ItemID, evt.Stage, evt.Category)
	case events.KindQueueDepth:
		fmt.Fprintf(&sb, " queue depth %d", evt.Depth)
	default:
		fmt.Fprintf(&sb, " %s", evt.Kind)
	}

	if evt.Detail != "" {
		fmt.Fprintf(&sb, ": %s", evt.Detail)
	}
	return sb.String()
}
