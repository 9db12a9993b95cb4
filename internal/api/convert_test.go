package api_test

import (
	"testing"
	"time"

	"squeeze/internal/api"
	"squeeze/internal/pipeline"
	"squeeze/internal/queue"
	"squeeze/internal/stage"
)

func TestFromItemMapsFields(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	item := &queue.Item{
		ID:              7,
		SourcePath:      "/library/Arrival.mkv",
		DisplayName:     "Arrival",
		Status:          queue.StatusQualitySearched,
		VideoCodec:      "h264",
		Width:           3840,
		Height:          2160,
		DurationSeconds: 6960,
		SizeBytes:       42 << 30,
		BitrateKbps:     51800,
		FinalPath:       "/library/Arrival.mkv",
		ProgressStage:   "quality_search",
		ProgressPercent: 100,
		ProgressMessage: "quality search complete",
		CreatedAt:       created,
		UpdatedAt:       created.Add(time.Hour),
	}

	dto := api.FromItem(item)
	if dto.ID != 7 || dto.DisplayName != "Arrival" {
		t.Fatalf("identity fields lost: %+v", dto)
	}
	if dto.Status != "quality_searched" {
		t.Fatalf("unexpected status %q", dto.Status)
	}
	if dto.Resolution != "3840x2160" {
		t.Fatalf("unexpected resolution %q", dto.Resolution)
	}
	if dto.Progress.Percent != 100 || dto.Progress.Stage != "quality_search" {
		t.Fatalf("progress not mapped: %+v", dto.Progress)
	}
	if dto.CreatedAt != "2026-03-14T09:26:53.000Z" {
		t.Fatalf("unexpected created timestamp %q", dto.CreatedAt)
	}
}

func TestFromItemHandlesNil(t *testing.T) {
	if dto := api.FromItem(nil); dto.ID != 0 || dto.Status != "" {
		t.Fatalf("expected zero DTO for nil item, got %+v", dto)
	}
	if items := api.FromItems(nil); items != nil {
		t.Fatalf("expected nil slice for empty input")
	}
}

func TestFromFailureFormatsResolution(t *testing.T) {
	resolved := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	record := &queue.FailureRecord{
		ID:       3,
		ItemID:   7,
		Stage:    "encoding",
		Category: queue.FailureCommandError,
		Message:  "ab-av1 exited with status 1",
		Context:  map[string]string{"command": "ab-av1 encode"},
		Resolved: true,
	}
	record.ResolvedAt = &resolved

	dto := api.FromFailure(record)
	if dto.Category != "command_error" {
		t.Fatalf("unexpected category %q", dto.Category)
	}
	if !dto.Resolved || dto.ResolvedAt != "2026-05-02T18:00:00.000Z" {
		t.Fatalf("resolution not mapped: %+v", dto)
	}
	if dto.Context["command"] != "ab-av1 encode" {
		t.Fatalf("context lost: %+v", dto.Context)
	}
}

func TestFromStatusSummaryOrdersHealth(t *testing.T) {
	summary := pipeline.StatusSummary{
		Running: true,
		Stages: []pipeline.StageSnapshot{
			{Stage: "analysis", Status: pipeline.StatusIdle, Demand: 1},
		},
		Queue: map[queue.Status]int{queue.StatusNeedsAnalysis: 2},
		Health: map[string]stage.Health{
			"quality-search": stage.Healthy("quality-search"),
			"analysis":       stage.Unhealthy("analysis", "ffprobe not found"),
		},
	}

	status := api.FromStatusSummary(summary)
	if !status.Running || status.QueueStats["needs_analysis"] != 2 {
		t.Fatalf("summary fields lost: %+v", status)
	}
	if len(status.StageHealth) != 2 || status.StageHealth[0].Name != "analysis" {
		t.Fatalf("stage health not sorted by name: %+v", status.StageHealth)
	}
	if status.StageHealth[0].Ready || status.StageHealth[0].Detail == "" {
		t.Fatalf("unhealthy detail lost: %+v", status.StageHealth[0])
	}
	if len(status.Stages) != 1 || status.Stages[0].Status != "idle" {
		t.Fatalf("stage snapshot not mapped: %+v", status.Stages)
	}
}
