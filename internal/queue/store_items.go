package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"squeeze/internal/services"
)

// NewItem enqueues a file for analysis, deduplicating on source path. The
// boolean reports whether a new row was created; when the path is already
// queued the existing item is returned untouched.
func (s *Store) NewItem(ctx context.Context, sourcePath, displayName string) (*Item, bool, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, false, services.Wrap(services.ErrValidation, "queue", "new item", "source path is required", nil)
	}
	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = DisplayNameFromPath(sourcePath)
	}

	if existing, err := s.ItemBySourcePath(ctx, sourcePath); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.exec(
		ctx,
		`INSERT INTO queue_items (
            source_path, display_name, status, created_at, updated_at, progress_percent
        ) VALUES (?, ?, ?, ?, ?, 0)
        ON CONFLICT(source_path) DO NOTHING`,
		sourcePath,
		displayName,
		StatusNeedsAnalysis,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost an insert race with another writer; the row exists now.
		existing, err := s.ItemBySourcePath(ctx, sourcePath)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	item, err := s.ItemByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// ItemByID fetches a queue item by identifier.
func (s *Store) ItemByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ItemBySourcePath returns the item registered for a source path, or nil.
func (s *Store) ItemBySourcePath(ctx context.Context, sourcePath string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE source_path = ? LIMIT 1`,
		sourcePath,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source path: %w", err)
	}
	return item, nil
}

// ItemByFinalPath returns the item whose encoded artifact landed at path, or
// nil. The watcher uses it to avoid re-queueing files the encoder just wrote.
func (s *Store) ItemByFinalPath(ctx context.Context, finalPath string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items WHERE final_path = ? LIMIT 1`,
		finalPath,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by final path: %w", err)
	}
	return item, nil
}

// Update persists the mutable presentation, analysis, and artifact fields of
// an item. Status, source path, and error message are deliberately excluded;
// status moves only through UpdateStatus, SetFailed, and Requeue.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if _, err := s.exec(
		ctx,
		`UPDATE queue_items
         SET display_name = ?, video_codec = ?, width = ?, height = ?,
             duration_seconds = ?, size_bytes = ?, bitrate_kbps = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             final_path = ?, updated_at = ?
         WHERE id = ?`,
		item.DisplayName,
		nullableString(item.VideoCodec),
		item.Width,
		item.Height,
		item.DurationSeconds,
		item.SizeBytes,
		item.BitrateKbps,
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		nullableString(item.FinalPath),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// SetProgress updates the progress fields for an in-flight item.
func (s *Store) SetProgress(ctx context.Context, id int64, stage, message string, percent float64) error {
	if _, err := s.exec(
		ctx,
		`UPDATE queue_items
         SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(stage),
		percent,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// List returns queue items filtered by status set (or all items when no
// status is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM queue_items`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// NextForAnalysis returns the oldest item awaiting analysis, skipping the
// provided in-flight identifiers. Analysis has no claimed status of its own,
// so the exclusion list is how the dispatcher keeps its current submission
// from being handed out twice.
func (s *Store) NextForAnalysis(ctx context.Context, excludeIDs ...int64) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE status = ?`
	args := []any{StatusNeedsAnalysis}
	if len(excludeIDs) > 0 {
		query += ` AND id NOT IN (` + makePlaceholders(len(excludeIDs)) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY created_at, id LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next for analysis: %w", err)
	}
	return item, nil
}

// NextForQualitySearch returns the analyzed item with the most to gain,
// ordered by bitrate then size so the heaviest sources are sampled first.
func (s *Store) NextForQualitySearch(ctx context.Context) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM queue_items
         WHERE status = ?
         ORDER BY bitrate_kbps DESC, size_bytes DESC, id
         LIMIT 1`,
		StatusAnalyzed,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next for quality search: %w", err)
	}
	return item, nil
}

// NextForEncoding returns the searched item whose chosen quality result
// predicts the largest savings.
func (s *Store) NextForEncoding(ctx context.Context) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+prefixColumns("qi", itemColumns)+` FROM queue_items qi
         JOIN quality_results qr ON qr.item_id = qi.id AND qr.chosen = 1
         WHERE qi.status = ?
         ORDER BY qr.predicted_savings_percent DESC, qi.id
         LIMIT 1`,
		StatusQualitySearched,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next for encoding: %w", err)
	}
	return item, nil
}

// CountEligible returns the number of items currently in a status.
func (s *Store) CountEligible(ctx context.Context, status Status) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_items WHERE status = ?`, status)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count eligible: %w", err)
	}
	return count, nil
}
