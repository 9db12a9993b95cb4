package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const itemColumns = "id, source_path, display_name, status, video_codec, width, height, duration_seconds, size_bytes, bitrate_kbps, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, final_path"

const resultColumns = "id, item_id, crf, predicted_score, predicted_size_bytes, predicted_savings_percent, chosen, created_at, updated_at"

const failureColumns = "id, item_id, stage, category, code, message, context_json, retry_count, resolved, resolved_at, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id              int64
		sourcePath      sql.NullString
		displayName     sql.NullString
		statusStr       string
		videoCodec      sql.NullString
		width           sql.NullInt64
		height          sql.NullInt64
		durationSeconds sql.NullFloat64
		sizeBytes       sql.NullInt64
		bitrateKbps     sql.NullInt64
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		finalPath       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&displayName,
		&statusStr,
		&videoCodec,
		&width,
		&height,
		&durationSeconds,
		&sizeBytes,
		&bitrateKbps,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&finalPath,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		SourcePath:      sourcePath.String,
		DisplayName:     displayName.String,
		Status:          Status(statusStr),
		VideoCodec:      videoCodec.String,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
		DurationSeconds: durationSeconds.Float64,
		SizeBytes:       sizeBytes.Int64,
		BitrateKbps:     bitrateKbps.Int64,
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		FinalPath:       finalPath.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func scanResult(scanner interface{ Scan(dest ...any) error }) (*QualityResult, error) {
	var (
		id         int64
		itemID     int64
		crf        float64
		score      sql.NullFloat64
		sizeBytes  sql.NullInt64
		savings    sql.NullFloat64
		chosen     sql.NullInt64
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(&id, &itemID, &crf, &score, &sizeBytes, &savings, &chosen, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	result := &QualityResult{
		ID:                      id,
		ItemID:                  itemID,
		CRF:                     crf,
		PredictedScore:          score.Float64,
		PredictedSizeBytes:      sizeBytes.Int64,
		PredictedSavingsPercent: savings.Float64,
		Chosen:                  chosen.Int64 != 0,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		result.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		result.UpdatedAt = updated
	}
	return result, nil
}

func scanFailure(scanner interface{ Scan(dest ...any) error }) (*FailureRecord, error) {
	var (
		id          int64
		itemID      int64
		stage       string
		category    string
		code        sql.NullString
		message     sql.NullString
		contextJSON sql.NullString
		retryCount  sql.NullInt64
		resolved    sql.NullInt64
		resolvedRaw sql.NullString
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(&id, &itemID, &stage, &category, &code, &message, &contextJSON, &retryCount, &resolved, &resolvedRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &FailureRecord{
		ID:         id,
		ItemID:     itemID,
		Stage:      stage,
		Category:   FailureCategory(category),
		Code:       code.String,
		Message:    message.String,
		RetryCount: int(retryCount.Int64),
		Resolved:   resolved.Int64 != 0,
	}

	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &record.Context); err != nil {
			record.Context = map[string]string{"raw": contextJSON.String}
		}
	}
	if resolvedRaw.Valid {
		if resolvedAt, err := parseTimeString(resolvedRaw.String); err == nil {
			record.ResolvedAt = &resolvedAt
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func marshalContext(context map[string]string) (any, error) {
	if len(context) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(context)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
