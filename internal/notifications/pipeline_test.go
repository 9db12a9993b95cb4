package notifications_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"squeeze/internal/logging"
	"squeeze/internal/notifications"
	"squeeze/internal/queue"
)

type recordingService struct {
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingService) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestPipelineNotifierPublishesOutcomes(t *testing.T) {
	svc := &recordingService{}
	notifier := notifications.NewPipelineNotifier(svc, logging.NewNop())

	finalPath := filepath.Join(t.TempDir(), "movie.mkv")
	if err := os.WriteFile(finalPath, make([]byte, 40), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	item := &queue.Item{ID: 7, DisplayName: "movie", SizeBytes: 100, FinalPath: finalPath}

	notifier.ItemEncoded(context.Background(), item)
	notifier.ItemFailed(context.Background(), item, "encoding", "encode failed")
	notifier.WorkerReset(context.Background(), "analysis", 900)

	want := []notifications.Event{
		notifications.EventEncodingCompleted,
		notifications.EventItemFailed,
		notifications.EventWorkerReset,
	}
	if len(svc.events) != len(want) {
		t.Fatalf("published %d events, want %d", len(svc.events), len(want))
	}
	for i, event := range want {
		if svc.events[i] != event {
			t.Fatalf("event[%d] = %s, want %s", i, svc.events[i], event)
		}
	}

	savings, ok := svc.payloads[0]["savings"].(float64)
	if !ok || savings != 60 {
		t.Fatalf("savings = %v, want 60", svc.payloads[0]["savings"])
	}
	if svc.payloads[1]["error"] != "encode failed" {
		t.Fatalf("failure payload = %+v", svc.payloads[1])
	}
	if svc.payloads[2]["probes"] != 900 {
		t.Fatalf("reset payload = %+v", svc.payloads[2])
	}
}
