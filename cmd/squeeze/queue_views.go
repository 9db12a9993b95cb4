package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"squeeze/internal/api"
	"squeeze/internal/queue"
)

// buildQueueStatusRows orders counts along the pipeline chain so the table
// reads in processing order, with unknown statuses appended alphabetically.
func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(stats))
	ordered := make([]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		key := string(status)
		if _, ok := stats[key]; ok {
			ordered = append(ordered, key)
			seen[key] = true
		}
	}
	extras := make([]string, 0)
	for key := range stats {
		if !seen[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	ordered = append(ordered, extras...)

	rows := make([][]string, 0, len(ordered))
	for _, key := range ordered {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildQueueListRows(items []api.QueueItem) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]api.QueueItem, len(items))
	copy(sorted, items)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseQueueTime(sorted[i].CreatedAt)
		tj := parseQueueTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			itemTitle(item),
			formatStatusLabel(item.Status),
			formatProgress(item.Progress),
			formatDisplayTime(item.CreatedAt),
		})
	}
	return rows
}

func itemTitle(item api.QueueItem) string {
	if title := strings.TrimSpace(item.DisplayName); title != "" {
		return title
	}
	if source := strings.TrimSpace(item.SourcePath); source != "" {
		return filepath.Base(source)
	}
	return "Unknown"
}

func formatProgress(progress api.QueueProgress) string {
	stage := strings.TrimSpace(progress.Stage)
	if stage == "" {
		return "-"
	}
	if progress.Percent > 0 {
		return fmt.Sprintf("%s %.0f%%", stage, progress.Percent)
	}
	return stage
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t := parseQueueTime(value); !t.IsZero() {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseQueueTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatSizeBytes(size int64) string {
	if size <= 0 {
		return "-"
	}
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case size >= gib:
		return fmt.Sprintf("%.2f GiB", float64(size)/float64(gib))
	case size >= mib:
		return fmt.Sprintf("%.1f MiB", float64(size)/float64(mib))
	case size >= kib:
		return fmt.Sprintf("%.0f KiB", float64(size)/float64(kib))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
