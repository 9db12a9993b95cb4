package api

import (
	"context"

	"squeeze/internal/queue"
)

// QueueReader abstracts the store queries the read-only API surface needs.
type QueueReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Item, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	ItemByID(ctx context.Context, id int64) (*queue.Item, error)
	ResultsForItem(ctx context.Context, itemID int64) ([]*queue.QualityResult, error)
	UnresolvedFailures(ctx context.Context) ([]*queue.FailureRecord, error)
	FailuresForItem(ctx context.Context, itemID int64) ([]*queue.FailureRecord, error)
	FailureByID(ctx context.Context, id int64) (*queue.FailureRecord, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns queue items filtered by status.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) ([]QueueItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out, nil
}

// Describe fetches a single queue item with its quality results. A nil item
// with nil error means the item does not exist.
func (s *QueueService) Describe(ctx context.Context, id int64) (*QueueItemResponse, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.ItemByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	results, err := s.store.ResultsForItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return &QueueItemResponse{
		Item:    FromItem(item),
		Results: FromResults(results),
	}, nil
}

// Failures returns the unresolved failure ledger, or every failure recorded
// against one item when itemID is positive.
func (s *QueueService) Failures(ctx context.Context, itemID int64) ([]FailureRecord, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	var (
		records []*queue.FailureRecord
		err     error
	)
	if itemID > 0 {
		records, err = s.store.FailuresForItem(ctx, itemID)
	} else {
		records, err = s.store.UnresolvedFailures(ctx)
	}
	if err != nil {
		return nil, err
	}
	return FromFailures(records), nil
}

// Failure fetches one ledger entry by ID, resolved or not. A nil record with
// nil error means the entry does not exist.
func (s *QueueService) Failure(ctx context.Context, id int64) (*FailureRecord, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	record, err := s.store.FailureByID(ctx, id)
	if err != nil || record == nil {
		return nil, err
	}
	dto := FromFailure(record)
	return &dto, nil
}
