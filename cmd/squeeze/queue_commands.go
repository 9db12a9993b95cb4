package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"squeeze/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the processing queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue item counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q queueAPI) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if stats == nil {
						stats = map[string]int{}
					}
					return writeJSON(cmd, stats)
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q queueAPI) error {
				items, err := q.List(cmd.Context(), normalizeStatusFilters(statusFilters))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if items == nil {
						items = []api.QueueItem{}
					}
					return writeJSON(cmd, items)
				}
				rows := buildQueueListRows(items)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Status", "Progress", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		Aliases: []string{"describe"},
		Short:   "Show one queue item with its quality results",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]
			return ctx.withQueue(func(q queueAPI) error {
				detail, err := q.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if detail == nil {
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]any{"error": "not_found", "id": id})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Item %d not found\n", id)
					return nil
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, detail)
				}
				printQueueItemDetail(cmd, detail)
				return nil
			})
		},
	}
}

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <path>",
		Short: "Add a video file to the processing queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := validateEnqueuePath(ctx, args[0])
			if err != nil {
				return err
			}

			return ctx.withQueue(func(q queueAPI) error {
				item, created, err := q.Enqueue(cmd.Context(), absPath)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"id": item.ID, "created": created})
				}
				name := filepath.Base(absPath)
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as item #%d\n", name, item.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Item #%d already covers %s (status: %s)\n", item.ID, name, formatStatusLabel(item.Status))
				}
				return nil
			})
		},
	}
}

// validateEnqueuePath resolves and checks a candidate file before it is
// handed to the daemon or store. The daemon re-validates on its side; this
// front check exists for sharp error messages when the daemon is offline.
func validateEnqueuePath(ctx *commandContext, arg string) (string, error) {
	absPath, err := filepath.Abs(strings.TrimSpace(arg))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("file does not exist: %s", absPath)
		}
		return "", fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", absPath)
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(info.Name())
	for _, allowed := range cfg.Library.Extensions {
		if strings.EqualFold(ext, allowed) {
			return absPath, nil
		}
	}
	return "", fmt.Errorf("unsupported file extension %q", ext)
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Requeue failed items for a fresh attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return ctx.withQueue(func(q queueAPI) error {
					updated, err := q.Retry(cmd.Context(), nil)
					if err != nil {
						return err
					}
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]any{"requeued": updated})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed items\n", updated)
					return nil
				})
			}

			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(q queueAPI) error {
				result, err := retryIDs(cmd.Context(), q, ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeQueueRetryResultJSON(cmd, result)
				}
				printQueueRetryResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items (all by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("choose one of --completed or --failed")
			}
			return ctx.withQueue(func(q queueAPI) error {
				var (
					removed int64
					label   string
					err     error
				)
				switch {
				case clearCompleted:
					removed, err = q.ClearCompleted(cmd.Context())
					label = "completed items"
				case clearFailed:
					removed, err = q.ClearFailed(cmd.Context())
					label = "failed items"
				default:
					removed, err = q.ClearAll(cmd.Context())
					label = "queue items"
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s\n", removed, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only encoded items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Summarize queue health counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(q queueAPI) error {
				summary, err := q.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]int{
						"total":      summary.Total,
						"pending":    summary.Pending,
						"processing": summary.Processing,
						"failed":     summary.Failed,
						"completed":  summary.Completed,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total:      %d\n", summary.Total)
				fmt.Fprintf(out, "Pending:    %d\n", summary.Pending)
				fmt.Fprintf(out, "Processing: %d\n", summary.Processing)
				fmt.Fprintf(out, "Failed:     %d\n", summary.Failed)
				fmt.Fprintf(out, "Completed:  %d\n", summary.Completed)
				return nil
			})
		},
	}
}

func normalizeStatusFilters(filters []string) []string {
	out := make([]string, 0, len(filters))
	for _, filter := range filters {
		filter = strings.ToLower(strings.TrimSpace(filter))
		if filter != "" {
			out = append(out, filter)
		}
	}
	return out
}
