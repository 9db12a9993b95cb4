package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RecordFailure appends an entry to the failure ledger. Every failed attempt
// gets its own row; nothing here overwrites earlier history.
func (s *Store) RecordFailure(ctx context.Context, record *FailureRecord) error {
	if record == nil {
		return errors.New("failure record is nil")
	}
	if record.Category == "" {
		record.Category = FailureUnknown
	}

	contextJSON, err := marshalContext(record.Context)
	if err != nil {
		return fmt.Errorf("marshal failure context: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.exec(
		ctx,
		`INSERT INTO failure_records (
            item_id, stage, category, code, message, context_json,
            retry_count, resolved, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		record.ItemID,
		record.Stage,
		record.Category,
		nullableString(record.Code),
		record.Message,
		contextJSON,
		record.RetryCount,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert failure record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	record.ID = id
	record.Resolved = false
	record.ResolvedAt = nil
	record.CreatedAt = now
	record.UpdatedAt = now
	return nil
}

// ResolveFailuresFor marks unresolved ledger entries for an item as resolved,
// returning how many were closed. A non-empty stage narrows the sweep to that
// stage's entries; the empty string closes everything for the item. Called
// when the item later succeeds or is deliberately abandoned.
func (s *Store) ResolveFailuresFor(ctx context.Context, itemID int64, stageName string) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	query := `UPDATE failure_records
         SET resolved = 1, resolved_at = ?, updated_at = ?
         WHERE item_id = ? AND resolved = 0`
	args := []any{timestamp, timestamp, itemID}
	if stageName != "" {
		query += ` AND stage = ?`
		args = append(args, stageName)
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("resolve failures: %w", err)
	}
	return res.RowsAffected()
}

// FailureByID fetches a single ledger entry.
func (s *Store) FailureByID(ctx context.Context, id int64) (*FailureRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+failureColumns+` FROM failure_records WHERE id = ?`, id)
	record, err := scanFailure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failure record: %w", err)
	}
	return record, nil
}

// UnresolvedFailures returns open ledger entries, newest first.
func (s *Store) UnresolvedFailures(ctx context.Context) ([]*FailureRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+failureColumns+` FROM failure_records WHERE resolved = 0 ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("unresolved failures: %w", err)
	}
	defer rows.Close()
	return collectFailures(rows)
}

// FailuresForItem returns the full failure history of an item, oldest first.
func (s *Store) FailuresForItem(ctx context.Context, itemID int64) ([]*FailureRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+failureColumns+` FROM failure_records WHERE item_id = ? ORDER BY id`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failures for item: %w", err)
	}
	defer rows.Close()
	return collectFailures(rows)
}

func collectFailures(rows *sql.Rows) ([]*FailureRecord, error) {
	var records []*FailureRecord
	for rows.Next() {
		record, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
