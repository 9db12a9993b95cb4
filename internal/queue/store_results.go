package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"squeeze/internal/services"
)

// UpsertResult records one quality-search sample. Re-sampling the same CRF
// updates the prediction columns in place; the chosen marker is never set
// here, only through ChooseResult. The stored row is copied back into result
// so callers see the assigned identifier and timestamps.
func (s *Store) UpsertResult(ctx context.Context, result *QualityResult) error {
	if result == nil {
		return errors.New("result is nil")
	}
	if result.ItemID <= 0 {
		return services.Wrap(services.ErrValidation, "queue", "upsert result", "item id is required", nil)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.exec(
		ctx,
		`INSERT INTO quality_results (
            item_id, crf, predicted_score, predicted_size_bytes, predicted_savings_percent,
            chosen, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?)
        ON CONFLICT(item_id, crf) DO UPDATE SET
            predicted_score = excluded.predicted_score,
            predicted_size_bytes = excluded.predicted_size_bytes,
            predicted_savings_percent = excluded.predicted_savings_percent,
            updated_at = excluded.updated_at`,
		result.ItemID,
		result.CRF,
		result.PredictedScore,
		result.PredictedSizeBytes,
		result.PredictedSavingsPercent,
		timestamp,
		timestamp,
	); err != nil {
		return fmt.Errorf("upsert quality result: %w", err)
	}

	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+resultColumns+` FROM quality_results WHERE item_id = ? AND crf = ?`,
		result.ItemID,
		result.CRF,
	)
	stored, err := scanResult(row)
	if err != nil {
		return fmt.Errorf("read back quality result: %w", err)
	}
	*result = *stored
	return nil
}

// ChooseResult marks one sample as the encoder's input. The clear-then-set
// transaction together with the partial unique index keeps the at-most-one
// invariant even if two choosers race.
func (s *Store) ChooseResult(ctx context.Context, itemID int64, crf float64) error {
	ctx = ctxOrBackground(ctx)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	return s.withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin choose tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE quality_results SET chosen = 0, updated_at = ? WHERE item_id = ? AND chosen = 1`,
			timestamp,
			itemID,
		); err != nil {
			return fmt.Errorf("clear chosen result: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`UPDATE quality_results SET chosen = 1, updated_at = ? WHERE item_id = ? AND crf = ?`,
			timestamp,
			itemID,
			crf,
		)
		if err != nil {
			return fmt.Errorf("set chosen result: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrNotFound, "queue", "choose result",
				fmt.Sprintf("no result for item %d at crf %g", itemID, crf), nil)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit choose: %w", err)
		}
		return nil
	})
}

// ChosenResult returns the chosen sample for an item, or nil when the item
// has not been searched yet.
func (s *Store) ChosenResult(ctx context.Context, itemID int64) (*QualityResult, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+resultColumns+` FROM quality_results WHERE item_id = ? AND chosen = 1`,
		itemID,
	)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chosen result: %w", err)
	}
	return result, nil
}

// ResultsForItem returns every recorded sample for an item ordered by CRF.
func (s *Store) ResultsForItem(ctx context.Context, itemID int64) ([]*QualityResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+resultColumns+` FROM quality_results WHERE item_id = ? ORDER BY crf`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("results for item: %w", err)
	}
	defer rows.Close()

	var results []*QualityResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}
