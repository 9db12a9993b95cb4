package testsupport

import (
	"context"
	"testing"

	"squeeze/internal/config"
	"squeeze/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem enqueues a fresh item for tests using the provided store.
func NewItem(t testing.TB, store *queue.Store, sourcePath string) *queue.Item {
	t.Helper()

	item, created, err := store.NewItem(context.Background(), sourcePath, "")
	if err != nil {
		t.Fatalf("store.NewItem: %v", err)
	}
	if !created {
		t.Fatalf("expected %s to be newly enqueued", sourcePath)
	}
	return item
}

// AdvanceItem walks an item forward through the given statuses in order,
// failing the test on any illegal edge. Useful for seeding mid-pipeline
// fixtures without bypassing the transition rules.
func AdvanceItem(t testing.TB, store *queue.Store, item *queue.Item, statuses ...queue.Status) {
	t.Helper()

	ctx := context.Background()
	current := item.Status
	for _, next := range statuses {
		if err := store.UpdateStatus(ctx, item.ID, current, next); err != nil {
			t.Fatalf("advance item %d from %s to %s: %v", item.ID, current, next, err)
		}
		current = next
	}
	item.Status = current
}
