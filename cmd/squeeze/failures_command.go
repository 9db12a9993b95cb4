package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"squeeze/internal/api"
)

func newFailuresCommand(ctx *commandContext) *cobra.Command {
	failuresCmd := &cobra.Command{
		Use:   "failures [item-id]",
		Short: "List failure records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var itemID int64
			if len(args) == 1 {
				ids, err := parsePositiveIDs(args)
				if err != nil {
					return err
				}
				itemID = ids[0]
			}
			return ctx.withQueue(func(q queueAPI) error {
				records, err := q.Failures(cmd.Context(), itemID)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if records == nil {
						records = []api.FailureRecord{}
					}
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					if itemID > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "No failures recorded for item %d\n", itemID)
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "No unresolved failures")
					}
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Item", "Stage", "Category", "Message", "Created", "Resolved"},
					buildFailureRows(records),
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	failuresCmd.AddCommand(newFailuresShowCommand(ctx))
	return failuresCmd
}

func newFailuresShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one failure record with its context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]
			return ctx.withQueue(func(q queueAPI) error {
				record, err := q.Failure(cmd.Context(), id)
				if err != nil {
					return err
				}
				if record == nil {
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]any{"error": "not_found", "id": id})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Failure %d not found\n", id)
					return nil
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, record)
				}
				printFailureDetail(cmd, record)
				return nil
			})
		},
	}
}

func buildFailureRows(records []api.FailureRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			strconv.FormatInt(record.ID, 10),
			strconv.FormatInt(record.ItemID, 10),
			record.Stage,
			record.Category,
			truncateMessage(record.Message, 60),
			formatDisplayTime(record.CreatedAt),
			yesNo(record.Resolved),
		})
	}
	return rows
}

func printFailureDetail(cmd *cobra.Command, record *api.FailureRecord) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "ID:          %d\n", record.ID)
	fmt.Fprintf(out, "Item:        %d\n", record.ItemID)
	fmt.Fprintf(out, "Stage:       %s\n", record.Stage)
	fmt.Fprintf(out, "Category:    %s\n", record.Category)
	if record.Code != "" {
		fmt.Fprintf(out, "Code:        %s\n", record.Code)
	}
	fmt.Fprintf(out, "Message:     %s\n", record.Message)
	fmt.Fprintf(out, "Retry count: %d\n", record.RetryCount)
	fmt.Fprintf(out, "Resolved:    %s\n", yesNo(record.Resolved))
	if record.ResolvedAt != "" {
		fmt.Fprintf(out, "Resolved at: %s\n", formatDisplayTime(record.ResolvedAt))
	}
	fmt.Fprintf(out, "Created:     %s\n", formatDisplayTime(record.CreatedAt))

	if len(record.Context) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Context:")
	keys := make([]string, 0, len(record.Context))
	for key := range record.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %s: %s\n", key, record.Context[key])
	}
}

func truncateMessage(message string, max int) string {
	if max <= 3 || len(message) <= max {
		return message
	}
	return message[:max-3] + "..."
}
