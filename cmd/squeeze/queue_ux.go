package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"squeeze/internal/api"
	"squeeze/internal/queue"
)

const (
	retryOutcomeUpdated   = "updated"
	retryOutcomeNotFound  = "not_found"
	retryOutcomeNotFailed = "not_failed"
)

type queueRetryOutcome struct {
	ID     int64
	Status string
}

type queueRetryResult struct {
	Outcomes []queueRetryOutcome
	Updated  int64
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// retryIDs requeues each id individually so the caller can report a precise
// outcome per item instead of one opaque count.
func retryIDs(ctx context.Context, q queueAPI, ids []int64) (queueRetryResult, error) {
	result := queueRetryResult{Outcomes: make([]queueRetryOutcome, 0, len(ids))}
	for _, id := range ids {
		detail, err := q.Describe(ctx, id)
		if err != nil {
			return queueRetryResult{}, err
		}
		if detail == nil {
			result.Outcomes = append(result.Outcomes, queueRetryOutcome{ID: id, Status: retryOutcomeNotFound})
			continue
		}
		if status, ok := queue.ParseStatus(detail.Item.Status); !ok || status != queue.StatusFailed {
			result.Outcomes = append(result.Outcomes, queueRetryOutcome{ID: id, Status: retryOutcomeNotFailed})
			continue
		}
		updated, err := q.Retry(ctx, []int64{id})
		if err != nil {
			return queueRetryResult{}, err
		}
		if updated == 0 {
			result.Outcomes = append(result.Outcomes, queueRetryOutcome{ID: id, Status: retryOutcomeNotFailed})
			continue
		}
		result.Updated += updated
		result.Outcomes = append(result.Outcomes, queueRetryOutcome{ID: id, Status: retryOutcomeUpdated})
	}
	return result, nil
}

func printQueueRetryResult(out io.Writer, result queueRetryResult) {
	for _, outcome := range result.Outcomes {
		switch outcome.Status {
		case retryOutcomeNotFound:
			fmt.Fprintf(out, "Item %d not found\n", outcome.ID)
		case retryOutcomeNotFailed:
			fmt.Fprintf(out, "Item %d is not in a retryable state (only failed items can be retried)\n", outcome.ID)
		default:
			fmt.Fprintf(out, "Item %d requeued\n", outcome.ID)
		}
	}
}

func writeQueueRetryResultJSON(cmd *cobra.Command, result queueRetryResult) error {
	type jsonOutcome struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	outcomes := make([]jsonOutcome, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		outcomes = append(outcomes, jsonOutcome{ID: outcome.ID, Status: outcome.Status})
	}
	return writeJSON(cmd, map[string]any{
		"requeued": result.Updated,
		"items":    outcomes,
	})
}

func printQueueItemDetail(cmd *cobra.Command, detail *api.QueueItemResponse) {
	out := cmd.OutOrStdout()
	item := detail.Item

	fmt.Fprintf(out, "ID:          %d\n", item.ID)
	fmt.Fprintf(out, "Title:       %s\n", itemTitle(item))
	fmt.Fprintf(out, "Source:      %s\n", item.SourcePath)
	fmt.Fprintf(out, "Status:      %s\n", formatStatusLabel(item.Status))
	if progress := formatProgress(item.Progress); progress != "-" {
		fmt.Fprintf(out, "Progress:    %s\n", progress)
	}
	if item.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s\n", item.ErrorMessage)
	}
	if item.VideoCodec != "" {
		fmt.Fprintf(out, "Video codec: %s\n", item.VideoCodec)
	}
	if item.Resolution != "" {
		fmt.Fprintf(out, "Resolution:  %s\n", item.Resolution)
	}
	if item.DurationSeconds > 0 {
		fmt.Fprintf(out, "Duration:    %s\n", formatDuration(item.DurationSeconds))
	}
	if item.SizeBytes > 0 {
		fmt.Fprintf(out, "Size:        %s\n", formatSizeBytes(item.SizeBytes))
	}
	if item.BitrateKbps > 0 {
		fmt.Fprintf(out, "Bitrate:     %d kbps\n", item.BitrateKbps)
	}
	if item.FinalPath != "" {
		fmt.Fprintf(out, "Final path:  %s\n", item.FinalPath)
	}
	fmt.Fprintf(out, "Created:     %s\n", formatDisplayTime(item.CreatedAt))
	fmt.Fprintf(out, "Updated:     %s\n", formatDisplayTime(item.UpdatedAt))

	if len(detail.Results) == 0 {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Quality results:")
	rows := make([][]string, 0, len(detail.Results))
	for _, result := range detail.Results {
		chosen := "-"
		if result.Chosen {
			chosen = "yes"
		}
		rows = append(rows, []string{
			strconv.FormatFloat(result.CRF, 'f', -1, 64),
			fmt.Sprintf("%.2f", result.PredictedScore),
			formatSizeBytes(result.PredictedSizeBytes),
			fmt.Sprintf("%.1f%%", result.PredictedSavingsPercent),
			chosen,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"CRF", "VMAF", "Predicted Size", "Savings", "Chosen"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
}
