package queue

import (
	"context"
	"fmt"
	"time"

	"squeeze/internal/services"
)

// UpdateStatus performs the conditional single-row transition stages use to
// claim and release items. The WHERE clause carries the expected current
// status, so a zero-row update means another worker moved the item first;
// that case surfaces as services.ErrNotFound and the caller simply drops its
// claim.
func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	if !CanTransition(from, to) {
		return services.Wrap(services.ErrValidation, "queue", "update status",
			fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	}
	res, err := s.exec(
		ctx,
		`UPDATE queue_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "queue", "update status",
			fmt.Sprintf("item %d is not %s", id, from), nil)
	}
	return nil
}

// SetFailed moves an item to failed and records the operator-facing message.
// Terminal items are left untouched so duplicate completion reports stay
// harmless.
func (s *Store) SetFailed(ctx context.Context, id int64, message string) error {
	if _, err := s.exec(
		ctx,
		`UPDATE queue_items
         SET status = ?, error_message = ?, progress_stage = 'Failed',
             progress_percent = 0, progress_message = ?, updated_at = ?
         WHERE id = ? AND status NOT IN (?, ?)`,
		StatusFailed,
		message,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusEncoded,
		StatusFailed,
	); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Requeue moves failed items back to needs_analysis for a fresh attempt.
// With no identifiers it requeues every failed item. Stale quality results
// are dropped so the new attempt starts clean, and unresolved ledger entries
// get their retry counter bumped. This is the only edge out of failed.
func (s *Store) Requeue(ctx context.Context, ids ...int64) (int64, error) {
	ctx = ctxOrBackground(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	var requeued int64
	err := s.withBusyRetry(ctx, func() error {
		requeued = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin requeue tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		query := `SELECT id FROM queue_items WHERE status = ?`
		args := []any{StatusFailed}
		if len(ids) > 0 {
			query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
			for _, id := range ids {
				args = append(args, id)
			}
		}
		query += ` ORDER BY id`

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select failed items: %w", err)
		}
		var targets []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan failed item: %w", err)
			}
			targets = append(targets, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range targets {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE queue_items
                 SET status = ?, error_message = NULL, progress_stage = NULL,
                     progress_percent = 0, progress_message = NULL, updated_at = ?
                 WHERE id = ? AND status = ?`,
				StatusNeedsAnalysis,
				timestamp,
				id,
				StatusFailed,
			); err != nil {
				return fmt.Errorf("requeue item %d: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM quality_results WHERE item_id = ?`, id); err != nil {
				return fmt.Errorf("clear stale results for item %d: %w", id, err)
			}
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE failure_records SET retry_count = retry_count + 1, updated_at = ?
                 WHERE item_id = ? AND resolved = 0`,
				timestamp,
				id,
			); err != nil {
				return fmt.Errorf("bump retry count for item %d: %w", id, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit requeue: %w", err)
		}
		requeued = int64(len(targets))
		return nil
	})
	return requeued, err
}

// Reclaim returns items stranded in a claimed status by an unclean shutdown
// to the head of their stage queue. Called once at daemon startup before any
// dispatcher runs.
func (s *Store) Reclaim(ctx context.Context) (int64, error) {
	res, err := s.exec(
		ctx,
		`UPDATE queue_items
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             progress_stage = 'Reclaimed', progress_percent = 0,
             progress_message = NULL, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusQualitySearching, StatusAnalyzed,
		StatusEncoding, StatusQualitySearched,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusQualitySearching,
		StatusEncoding,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck items: %w", err)
	}
	return res.RowsAffected()
}
