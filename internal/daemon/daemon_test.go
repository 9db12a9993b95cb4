package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"squeeze/internal/api"
	"squeeze/internal/config"
	"squeeze/internal/daemon"
	"squeeze/internal/events"
	"squeeze/internal/logging"
	"squeeze/internal/notifications"
	"squeeze/internal/pipeline"
	"squeeze/internal/queue"
	"squeeze/internal/stage"
	"squeeze/internal/testsupport"
)

type noopHandler struct{ name string }

func (h noopHandler) Prepare(context.Context, *queue.Item) error { return nil }
func (h noopHandler) Execute(context.Context, *queue.Item) error { return nil }
func (h noopHandler) HealthCheck(context.Context) stage.Health   { return stage.Healthy(h.name) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.last = payload
	return nil
}

func (r *recordingNotifier) saw(event notifications.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, seen := range r.events {
		if seen == event {
			return true
		}
	}
	return false
}

func newTestDaemon(t *testing.T) (*daemon.Daemon, *queue.Store, *config.Config, *events.Hub) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	logger := logging.NewNop()

	mgr := pipeline.NewManager(cfg, store, logger, hub, nil)
	if err := mgr.ConfigureStages(pipeline.StageSet{
		Analysis:      noopHandler{name: "analysis"},
		QualitySearch: noopHandler{name: "quality-search"},
		Encoding:      noopHandler{name: "encoding"},
	}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	logPath := filepath.Join(cfg.Paths.LogDir, "squeeze.log")
	d, err := daemon.New(cfg, store, logger, mgr, hub, logPath)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store, cfg, hub
}

func TestDaemonStartStop(t *testing.T) {
	d, _, _, _ := newTestDaemon(t)
	notifier := &recordingNotifier{}
	d.SetNotifier(notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID <= 0 {
		t.Fatalf("expected a PID, got %d", status.PID)
	}
	if status.QueueDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("expected paths in status, got %+v", status)
	}
	if len(status.Dependencies) != 3 {
		t.Fatalf("expected 3 dependency statuses, got %d", len(status.Dependencies))
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight checks in status")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if !notifier.saw(notifications.EventDaemonStarted) || !notifier.saw(notifications.EventDaemonStopped) {
		t.Fatalf("expected lifecycle notifications, got %v", notifier.events)
	}

	// Stop after stop is a no-op.
	d.Stop()
}

func TestDaemonSweepsOrphanedStaging(t *testing.T) {
	d, store, cfg, _ := newTestDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	item := testsupport.NewItem(t, store, filepath.Join(cfg.Library.Roots[0], "Kept.mkv"))
	liveDir := item.StagingRoot(cfg.Paths.StagingDir)
	orphanDir := filepath.Join(cfg.Paths.StagingDir, "item-9999")
	for _, dir := range []string{liveDir, orphanDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Fatalf("orphan staging dir should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(liveDir); err != nil {
		t.Fatalf("live staging dir should survive the sweep: %v", err)
	}
}

func TestDaemonLockRejectsSecondInstance(t *testing.T) {
	first, store, cfg, _ := newTestDaemon(t)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	t.Cleanup(func() { first.Stop() })

	mgr := pipeline.NewManager(cfg, store, logging.NewNop(), nil, nil)
	if err := mgr.ConfigureStages(pipeline.StageSet{
		Analysis:      noopHandler{name: "analysis"},
		QualitySearch: noopHandler{name: "quality-search"},
		Encoding:      noopHandler{name: "encoding"},
	}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	second, err := daemon.New(cfg, store, logging.NewNop(), mgr, nil, first.LogPath())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected lock conflict for second instance")
	}
}

func TestDaemonEnqueueFile(t *testing.T) {
	d, store, cfg, _ := newTestDaemon(t)
	ctx := context.Background()

	source := filepath.Join(cfg.Library.Roots[0], "The Conversation.mkv")
	testsupport.WriteFile(t, source, 4096)

	item, created, err := d.EnqueueFile(ctx, source)
	if err != nil {
		t.Fatalf("EnqueueFile: %v", err)
	}
	if !created || item == nil {
		t.Fatalf("expected a new item, got created=%v item=%+v", created, item)
	}
	if item.Status != queue.StatusNeedsAnalysis {
		t.Fatalf("unexpected status %s", item.Status)
	}

	_, created, err = d.EnqueueFile(ctx, source)
	if err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if created {
		t.Fatal("expected duplicate enqueue to report created=false")
	}

	notes := filepath.Join(cfg.Library.Roots[0], "notes.txt")
	testsupport.WriteFile(t, notes, 64)
	if _, _, err := d.EnqueueFile(ctx, notes); err == nil {
		t.Fatal("expected extension rejection")
	}
	if _, _, err := d.EnqueueFile(ctx, cfg.Library.Roots[0]); err == nil {
		t.Fatal("expected directory rejection")
	}
	if _, _, err := d.EnqueueFile(ctx, "  "); err == nil {
		t.Fatal("expected empty path rejection")
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly one queued item, got %d", len(items))
	}
}

func TestDaemonRequeueAndClear(t *testing.T) {
	d, store, cfg, _ := newTestDaemon(t)
	ctx := context.Background()

	item := testsupport.NewItem(t, store, filepath.Join(cfg.Library.Roots[0], "Alien.mkv"))
	if err := store.SetFailed(ctx, item.ID, "probe exploded"); err != nil {
		t.Fatalf("SetFailed: %v", err)
	}

	count, err := d.Requeue(ctx, nil)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 requeued item, got %d", count)
	}
	requeued, err := store.ItemByID(ctx, item.ID)
	if err != nil || requeued == nil {
		t.Fatalf("ItemByID: %v", err)
	}
	if requeued.Status != queue.StatusNeedsAnalysis {
		t.Fatalf("expected needs_analysis after requeue, got %s", requeued.Status)
	}

	removed, err := d.ClearQueue(ctx)
	if err != nil {
		t.Fatalf("ClearQueue: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}

func TestDaemonHandleLibraryAdds(t *testing.T) {
	d, _, _, _ := newTestDaemon(t)
	notifier := &recordingNotifier{}
	d.SetNotifier(notifier)

	items := []*queue.Item{
		{ID: 1, DisplayName: "Stalker"},
		{ID: 2, DisplayName: "Solaris"},
	}
	d.HandleLibraryAdds(context.Background(), items)

	if !notifier.saw(notifications.EventQueueAdded) {
		t.Fatal("expected queue-add notification")
	}
	if notifier.last["count"] != 2 || notifier.last["first"] != "Stalker" {
		t.Fatalf("unexpected payload %v", notifier.last)
	}

	// Empty batches stay silent.
	notifier.events = nil
	d.HandleLibraryAdds(context.Background(), nil)
	if len(notifier.events) != 0 {
		t.Fatal("expected no notification for empty batch")
	}
}

func TestDaemonEventsFacade(t *testing.T) {
	d, _, _, hub := newTestDaemon(t)
	ctx := context.Background()

	hub.Publish(events.ItemState(7, "analysis", "needs_analysis", "analyzed"))
	hub.Publish(events.StageStatus("analysis", "running", "idle"))

	tail, next := d.EventsTail(10)
	if len(tail) != 2 || next != 2 {
		t.Fatalf("unexpected tail len=%d next=%d", len(tail), next)
	}

	fetched, cursor, err := d.Events(ctx, 1, 10, false)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(fetched) != 1 || fetched[0].Kind != events.KindStageStatus {
		t.Fatalf("unexpected fetch result %+v", fetched)
	}
	if cursor != 2 {
		t.Fatalf("expected cursor 2, got %d", cursor)
	}
}

func TestDaemonServesHTTPAPI(t *testing.T) {
	d, store, cfg, hub := newTestDaemon(t)
	ctx := context.Background()

	testsupport.NewItem(t, store, filepath.Join(cfg.Library.Roots[0], "Heat.mkv"))
	hub.Publish(events.QueueDepth("analysis", "needs_analysis", 1))

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected bound api address")
	}
	base := "http://" + addr

	var status api.DaemonStatus
	getJSON(t, base+"/api/status", &status)
	if !status.Running || status.PID <= 0 {
		t.Fatalf("unexpected status payload %+v", status)
	}
	if len(status.Pipeline.Stages) != 3 {
		t.Fatalf("expected 3 stage snapshots, got %d", len(status.Pipeline.Stages))
	}

	var list api.QueueListResponse
	getJSON(t, base+"/api/queue", &list)
	if len(list.Items) != 1 || list.Items[0].DisplayName != "Heat" {
		t.Fatalf("unexpected queue payload %+v", list)
	}

	var described api.QueueItemResponse
	getJSON(t, fmt.Sprintf("%s/api/queue/%d", base, list.Items[0].ID), &described)
	if described.Item.ID != list.Items[0].ID {
		t.Fatalf("describe mismatch: %+v", described)
	}

	var evts api.EventsResponse
	getJSON(t, base+"/api/events", &evts)
	if len(evts.Events) == 0 || evts.Next == 0 {
		t.Fatalf("expected events, got %+v", evts)
	}

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", resp.StatusCode)
	}
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d body %s", url, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %s: %v (body %s)", url, err, body)
	}
}
