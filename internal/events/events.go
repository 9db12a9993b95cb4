// Package events carries pipeline activity to external consumers. The hub is
// a bounded in-memory ring: publishers never block, slow readers page through
// sequence numbers, and events older than the ring are gone. Payloads carry
// enough identity (item, stage, old/new value) that a consumer can render
// them without re-querying the store.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind labels what an event describes.
type Kind string

const (
	// KindItemState marks a queue item moving between lifecycle states.
	KindItemState Kind = "item_state"
	// KindStageStatus marks a stage's operational status changing.
	KindStageStatus Kind = "stage_status"
	// KindFailure marks a new failure ledger entry.
	KindFailure Kind = "failure"
	// KindQueueDepth reports the eligible backlog for a stage.
	KindQueueDepth Kind = "queue_depth"
)

// Event is one pipeline occurrence.
type Event struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Kind      Kind      `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	ItemID    int64     `json:"item_id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Category  string    `json:"category,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Depth     int       `json:"depth,omitempty"`
}

// ItemState builds an item lifecycle transition event.
func ItemState(itemID int64, stageName, from, to string) Event {
	return Event{Kind: KindItemState, ItemID: itemID, Stage: stageName, From: from, To: to}
}

// StageStatus builds a stage operational status transition event.
func StageStatus(stageName, from, to string) Event {
	return Event{Kind: KindStageStatus, Stage: stageName, From: from, To: to}
}

// Failure builds a failure ledger event.
func Failure(itemID int64, stageName, category, detail string) Event {
	return Event{Kind: KindFailure, ItemID: itemID, Stage: stageName, Category: category, Detail: detail}
}

// QueueDepth builds a backlog depth event for a stage's source state.
func QueueDepth(stageName, state string, depth int) Event {
	return Event{Kind: KindQueueDepth, Stage: stageName, To: state, Depth: depth}
}

// Hub stores recent events and wakes waiters when new ones arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// NewHub constructs a bounded event ring.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 1024
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends an event, stamping sequence and time. Safe on a nil hub so
// callers without an event surface can skip the wiring.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns events with sequence greater than since. When wait is true it
// blocks until at least one event is available or the context ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		out, next := h.snapshotLocked(since, limit)
		if len(out) > 0 || !wait {
			return out, next, ctxErr(ctx)
		}
		if err := ctxErr(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := ctxErr(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (h *Hub) Tail(limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	start := len(h.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	startIdx := -1
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, h.nextSeq
	}
	end := startIdx + limit
	if end > len(h.buffer) {
		end = len(h.buffer)
	}
	out := make([]Event, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	return out, h.nextSeq
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
