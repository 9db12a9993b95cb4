package api

import (
	"slices"

	"squeeze/internal/events"
	"squeeze/internal/pipeline"
	"squeeze/internal/queue"
)

// FromItem converts a queue record to its API representation.
func FromItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}

	dto := QueueItem{
		ID:          item.ID,
		DisplayName: item.DisplayName,
		SourcePath:  item.SourcePath,
		Status:      string(item.Status),
		Progress: QueueProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		ErrorMessage:    item.ErrorMessage,
		VideoCodec:      item.VideoCodec,
		Resolution:      item.Resolution(),
		DurationSeconds: item.DurationSeconds,
		SizeBytes:       item.SizeBytes,
		BitrateKbps:     item.BitrateKbps,
		FinalPath:       item.FinalPath,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromItems converts a slice of queue records into API DTOs.
func FromItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// FromResult converts a quality result row to its API representation.
func FromResult(result *queue.QualityResult) QualityResult {
	if result == nil {
		return QualityResult{}
	}
	return QualityResult{
		CRF:                     result.CRF,
		PredictedScore:          result.PredictedScore,
		PredictedSizeBytes:      result.PredictedSizeBytes,
		PredictedSavingsPercent: result.PredictedSavingsPercent,
		Chosen:                  result.Chosen,
	}
}

// FromResults converts quality result rows into API DTOs.
func FromResults(results []*queue.QualityResult) []QualityResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]QualityResult, 0, len(results))
	for _, result := range results {
		out = append(out, FromResult(result))
	}
	return out
}

// FromFailure converts a failure ledger entry to its API representation.
func FromFailure(record *queue.FailureRecord) FailureRecord {
	if record == nil {
		return FailureRecord{}
	}
	dto := FailureRecord{
		ID:         record.ID,
		ItemID:     record.ItemID,
		Stage:      record.Stage,
		Category:   string(record.Category),
		Code:       record.Code,
		Message:    record.Message,
		Context:    record.Context,
		RetryCount: record.RetryCount,
		Resolved:   record.Resolved,
	}
	if record.ResolvedAt != nil && !record.ResolvedAt.IsZero() {
		dto.ResolvedAt = record.ResolvedAt.UTC().Format(dateTimeFormat)
	}
	if !record.CreatedAt.IsZero() {
		dto.CreatedAt = record.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromFailures converts failure ledger entries into API DTOs.
func FromFailures(records []*queue.FailureRecord) []FailureRecord {
	if len(records) == 0 {
		return nil
	}
	out := make([]FailureRecord, 0, len(records))
	for _, record := range records {
		out = append(out, FromFailure(record))
	}
	return out
}

// FromStatusSummary converts a pipeline status summary to its API payload.
// Stage health entries are emitted in name order so payloads are stable.
func FromStatusSummary(summary pipeline.StatusSummary) PipelineStatus {
	healthNames := make([]string, 0, len(summary.Health))
	for name := range summary.Health {
		healthNames = append(healthNames, name)
	}
	slices.Sort(healthNames)

	health := make([]StageHealth, 0, len(healthNames))
	for _, name := range healthNames {
		h := summary.Health[name]
		health = append(health, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}

	stats := make(map[string]int, len(summary.Queue))
	for status, count := range summary.Queue {
		stats[string(status)] = count
	}

	stages := make([]StageSnapshot, 0, len(summary.Stages))
	for _, snap := range summary.Stages {
		stages = append(stages, StageSnapshot{
			Stage:                   snap.Stage,
			Status:                  string(snap.Status),
			Demand:                  snap.Demand,
			InFlightItemID:          snap.InFlightItemID,
			ManualQueueDepth:        snap.ManualQueueDepth,
			ConsecutiveUnresponsive: snap.ConsecutiveUnresponsive,
			LastItemID:              snap.LastItemID,
			LastError:               snap.LastError,
		})
	}

	return PipelineStatus{
		Running:     summary.Running,
		Stages:      stages,
		QueueStats:  stats,
		StageHealth: health,
	}
}

// FromEvent converts a hub event to its API representation.
func FromEvent(evt events.Event) Event {
	out := Event{
		Sequence: evt.Sequence,
		Kind:     string(evt.Kind),
		Stage:    evt.Stage,
		ItemID:   evt.ItemID,
		From:     evt.From,
		To:       evt.To,
		Category: evt.Category,
		Detail:   evt.Detail,
		Depth:    evt.Depth,
	}
	if !evt.Timestamp.IsZero() {
		out.Timestamp = evt.Timestamp.UTC().Format(dateTimeFormat)
	}
	return out
}

// FromEvents converts a batch of hub events.
func FromEvents(evts []events.Event) []Event {
	if len(evts) == 0 {
		return nil
	}
	out := make([]Event, 0, len(evts))
	for _, evt := range evts {
		out = append(out, FromEvent(evt))
	}
	return out
}
