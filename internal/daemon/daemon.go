package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"squeeze/internal/config"
	"squeeze/internal/deps"
	"squeeze/internal/events"
	"squeeze/internal/logging"
	"squeeze/internal/notifications"
	"squeeze/internal/pipeline"
	"squeeze/internal/preflight"
	"squeeze/internal/queue"
	"squeeze/internal/staging"
	"squeeze/internal/watch"
)

// Daemon coordinates the background services and enforces single-instance
// execution through a file lock in the log directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	manager *pipeline.Manager
	hub     *events.Hub
	logPath string

	watcher  *watch.Watcher
	notifier notifications.Service
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	checks       []preflight.Result
	dependencies []deps.Status

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Pipeline     pipeline.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Dependencies []deps.Status
	Checks       []preflight.Result
}

// New constructs a daemon around an open store and a configured manager. The
// HTTP API server is built here when an api_bind address is configured; it
// starts listening only once Start runs.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, manager *pipeline.Manager, hub *events.Hub, logPath string) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, and pipeline manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if hub == nil {
		hub = events.NewHub(256)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "squeezed.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		manager:  manager,
		hub:      hub,
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// AttachWatcher hands the daemon a library watcher to run alongside the
// pipeline. Must be called before Start.
func (d *Daemon) AttachWatcher(w *watch.Watcher) {
	d.watcher = w
}

// SetNotifier wires the push notification service used for lifecycle and
// queue events. Must be called before Start.
func (d *Daemon) SetNotifier(service notifications.Service) {
	d.notifier = service
}

// Start acquires the daemon lock, runs preflight, and launches the pipeline
// manager, the library watcher, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another squeeze daemon instance is already running")
	}

	d.runPreflight()
	d.sweepStaging(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			d.logger.Warn("library watcher failed to start", logging.Error(err))
		}
	}
	if err := d.api.start(runCtx); err != nil {
		if d.watcher != nil {
			d.watcher.Stop()
		}
		d.manager.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("squeeze daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()))
	d.publish(ctx, notifications.EventDaemonStarted, nil)
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.manager.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.publish(context.Background(), notifications.EventDaemonStopped, nil)
	d.logger.Info("squeeze daemon stopped")
}

// Close stops the daemon and releases the queue store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has completed and Stop has not.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Pause suspends dispatch for one stage, or for every stage when stageName is
// empty.
func (d *Daemon) Pause(stageName string) error {
	return d.manager.Pause(stageName)
}

// Resume reverses Pause with the same stage semantics.
func (d *Daemon) Resume(stageName string) error {
	return d.manager.Resume(stageName)
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// ClearQueue removes all queue items that are not currently processing.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only encoded queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// Requeue resets failed items (optionally a subset) for another pass.
func (d *Daemon) Requeue(ctx context.Context, ids []int64) (int64, error) {
	count, err := d.store.Requeue(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		d.manager.Nudge(pipeline.StageAnalysis)
	}
	return count, nil
}

// EnqueueFile adds a single file to the queue outside the watcher path. The
// file must exist and carry one of the configured library extensions.
func (d *Daemon) EnqueueFile(ctx context.Context, sourcePath string) (*queue.Item, bool, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, false, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, false, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, false, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !d.allowedExtension(ext) {
		return nil, false, fmt.Errorf("unsupported file extension %q", ext)
	}

	item, created, err := d.store.NewItem(ctx, absPath, "")
	if err != nil {
		return nil, false, fmt.Errorf("enqueue file: %w", err)
	}
	if created {
		d.logger.Info("file queued manually",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("source", absPath))
		d.manager.Nudge(pipeline.StageAnalysis)
	}
	return item, created, nil
}

// HandleLibraryAdds is the watcher callback: it wakes the analysis stage and
// sends a queue-add notification describing the batch.
func (d *Daemon) HandleLibraryAdds(ctx context.Context, items []*queue.Item) {
	if len(items) == 0 {
		return
	}
	d.manager.Nudge(pipeline.StageAnalysis)
	d.publish(ctx, notifications.EventQueueAdded, notifications.Payload{
		"count": len(items),
		"first": items[0].DisplayName,
	})
}

// Item returns one queue item by ID, or nil when absent.
func (d *Daemon) Item(ctx context.Context, id int64) (*queue.Item, error) {
	return d.store.ItemByID(ctx, id)
}

// QualityResults returns the CRF search samples recorded for an item.
func (d *Daemon) QualityResults(ctx context.Context, itemID int64) ([]*queue.QualityResult, error) {
	return d.store.ResultsForItem(ctx, itemID)
}

// Failures lists failure records: all unresolved ones, or the full history of
// one item when itemID is non-zero.
func (d *Daemon) Failures(ctx context.Context, itemID int64) ([]*queue.FailureRecord, error) {
	if itemID > 0 {
		return d.store.FailuresForItem(ctx, itemID)
	}
	return d.store.UnresolvedFailures(ctx)
}

// Failure returns one failure record by ID, or nil when absent.
func (d *Daemon) Failure(ctx context.Context, id int64) (*queue.FailureRecord, error) {
	return d.store.FailureByID(ctx, id)
}

// Events returns pipeline events after the given sequence. With wait set, the
// call blocks until an event past since arrives or ctx ends.
func (d *Daemon) Events(ctx context.Context, since uint64, limit int, wait bool) ([]events.Event, uint64, error) {
	return d.hub.Fetch(ctx, since, limit, wait)
}

// EventsTail returns the most recent events in the hub's ring.
func (d *Daemon) EventsTail(limit int) ([]events.Event, uint64) {
	return d.hub.Tail(limit)
}

// QueueHealth returns aggregate queue counts.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// LogPath returns the path of the daemon's current log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddr returns the HTTP API's bound address, or "" when the API is
// disabled or not yet started.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status, including the preflight and
// dependency results captured at the last Start.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Pipeline:     d.manager.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: d.dependencies,
		Checks:       d.checks,
	}
}

func (d *Daemon) runPreflight() {
	d.checks = preflight.RunAll(d.cfg)
	d.dependencies = preflight.CheckSystemDeps(d.cfg)

	for _, result := range d.checks {
		if result.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail))
	}
	for _, status := range d.dependencies {
		if status.Available || status.Optional {
			continue
		}
		d.logger.Warn("required binary unavailable",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail))
	}
}

// sweepStaging drops work directories left behind by queue rows that no
// longer exist, such as items removed by queue clear while mid-encode.
func (d *Daemon) sweepStaging(ctx context.Context) {
	root := strings.TrimSpace(d.cfg.Paths.StagingDir)
	if root == "" {
		return
	}
	items, err := d.store.List(ctx)
	if err != nil {
		d.logger.Warn("staging sweep skipped", logging.Error(err))
		return
	}
	live := make(map[int64]struct{}, len(items))
	for _, item := range items {
		live[item.ID] = struct{}{}
	}
	result := staging.SweepOrphans(root, live, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("staging sweep complete",
			logging.Int("removed", len(result.Removed)))
	}
}

func (d *Daemon) allowedExtension(ext string) bool {
	for _, allowed := range d.cfg.Library.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

func (d *Daemon) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Publish(ctx, event, payload); err != nil {
		d.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}
