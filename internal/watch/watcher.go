// Package watch feeds the queue from the library roots. An fsnotify
// watcher picks up files as they land and an initial scan covers anything
// that arrived while the daemon was down; both funnel through a settle
// check so half-copied files are never queued.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"squeeze/internal/admission"
	"squeeze/internal/config"
	"squeeze/internal/logging"
	"squeeze/internal/queue"
	"squeeze/internal/services"
)

// sweepInterval is how often settle candidates are re-examined.
const sweepInterval = time.Second

// AddedFunc receives the items a sweep admitted to the queue. The daemon
// uses it to nudge the analyzer and emit queue notifications.
type AddedFunc func(ctx context.Context, items []*queue.Item)

// Watcher discovers video files under the configured library roots and
// registers them as queue items once they stop changing.
type Watcher struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	admission *admission.Controller
	onAdded   AddedFunc

	// pending is owned by the watch loop; tests drive it directly.
	pending map[string]*candidate

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// candidate tracks a file waiting out the settle window.
type candidate struct {
	lastEvent time.Time
	lastSize  int64
}

// NewWatcher builds a library watcher. onAdded may be nil.
func NewWatcher(cfg *config.Config, store *queue.Store, logger *slog.Logger, controller *admission.Controller, onAdded AddedFunc) *Watcher {
	return &Watcher{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "watch"),
		admission: controller,
		onAdded:   onAdded,
		pending:   make(map[string]*candidate),
	}
}

// Start begins watching the library roots until ctx is cancelled or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return services.Wrap(services.ErrTransient, "watch", "start", "library watcher is already running", nil)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "watch", "start", "failed to initialize the filesystem watcher", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	go w.loop(runCtx, fsw)

	w.logger.Info("library watcher started",
		logging.Int("roots", len(w.cfg.Library.Roots)),
		logging.Int("settle_seconds", w.cfg.Watch.SettleSeconds))
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("library watcher stopped")
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	w.scan(ctx, fsw, time.Now())

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", logging.Error(err))
		case now := <-ticker.C:
			w.notify(ctx, w.sweep(ctx, now))
		}
	}
}

// scan walks the library roots once, registering directory watches and
// seeding settle candidates for files that are already present.
func (w *Watcher) scan(ctx context.Context, fsw *fsnotify.Watcher, now time.Time) {
	for _, root := range w.cfg.Library.Roots {
		if ctx.Err() != nil {
			return
		}
		w.watchTree(ctx, fsw, root, now)
	}
}

func (w *Watcher) watchTree(ctx context.Context, fsw *fsnotify.Watcher, root string, now time.Time) {
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("cannot inspect library path", logging.String("path", path), logging.Error(walkErr))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if path != root && (strings.HasPrefix(entry.Name(), ".") || w.underManagedDir(path)) {
				return fs.SkipDir
			}
			if fsw != nil {
				if err := fsw.Add(path); err != nil {
					w.logger.Warn("cannot watch directory", logging.String("path", path), logging.Error(err))
				}
			}
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		w.observe(path, info, now)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("library scan aborted", logging.String("root", root), logging.Error(err))
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			delete(w.pending, ev.Name)
		}
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		delete(w.pending, ev.Name)
		return
	}
	if info.IsDir() {
		// New directories need their own watch before files inside them
		// produce events.
		if ev.Op&fsnotify.Create != 0 {
			w.watchTree(ctx, fsw, ev.Name, time.Now())
		}
		return
	}
	w.observe(ev.Name, info, time.Now())
}

// observe records or refreshes the settle candidate for a file.
func (w *Watcher) observe(path string, info os.FileInfo, now time.Time) {
	if !w.eligiblePath(path) {
		return
	}
	w.pending[path] = &candidate{lastEvent: now, lastSize: info.Size()}
}

// sweep admits candidates that stayed quiet for the settle window and
// whose size stopped changing. The per-pass budget follows the metadata
// admission decision so a bulk drop does not flood the queue at once.
func (w *Watcher) sweep(ctx context.Context, now time.Time) []*queue.Item {
	if len(w.pending) == 0 {
		return nil
	}

	settle := time.Duration(w.cfg.Watch.SettleSeconds) * time.Second
	budget := w.admission.Decide(ctx, admission.SiteMetadataExtraction).BatchSize
	minBytes := int64(w.cfg.Library.MinSizeMiB) * 1024 * 1024

	var added []*queue.Item
	for path, cand := range w.pending {
		if now.Sub(cand.lastEvent) < settle {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.Size() != cand.lastSize {
			// Still growing; restart the settle window.
			cand.lastSize = info.Size()
			cand.lastEvent = now
			continue
		}
		if info.Size() < minBytes {
			w.logger.Debug("skipping file below size floor",
				logging.String("path", path),
				logging.Int64("size_bytes", info.Size()))
			delete(w.pending, path)
			continue
		}
		if budget <= 0 {
			continue
		}
		budget--
		delete(w.pending, path)

		item, err := w.admitFile(ctx, path)
		if err != nil {
			w.logger.Warn("failed to queue discovered file", logging.String("path", path), logging.Error(err))
			continue
		}
		if item != nil {
			added = append(added, item)
		}
	}
	return added
}

// admitFile registers path as a queue item unless it is already known or
// is an artifact the encoder just delivered.
func (w *Watcher) admitFile(ctx context.Context, path string) (*queue.Item, error) {
	prior, err := w.store.ItemByFinalPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		w.logger.Debug("ignoring freshly encoded artifact", logging.String("path", path))
		return nil, nil
	}

	item, created, err := w.store.NewItem(ctx, path, queue.DisplayNameFromPath(path))
	if err != nil {
		return nil, err
	}
	if !created {
		w.logger.Debug("file already queued",
			logging.String("path", path),
			logging.Int64("item_id", item.ID))
		return nil, nil
	}
	w.logger.Info("queued new library file",
		logging.String("path", path),
		logging.Int64("item_id", item.ID),
		logging.String("title", item.DisplayName))
	return item, nil
}

func (w *Watcher) notify(ctx context.Context, added []*queue.Item) {
	if len(added) == 0 || w.onAdded == nil {
		return
	}
	w.onAdded(ctx, added)
}

func (w *Watcher) eligiblePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if !w.allowedExtension(filepath.Ext(base)) {
		return false
	}
	return !w.underManagedDir(path)
}

func (w *Watcher) allowedExtension(ext string) bool {
	for _, allowed := range w.cfg.Library.Extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}

// underManagedDir reports whether path sits inside the staging or output
// directories, which hold files the pipeline itself writes.
func (w *Watcher) underManagedDir(path string) bool {
	for _, dir := range []string{w.cfg.Paths.StagingDir, w.cfg.Paths.OutputDir} {
		if dir != "" && isUnder(dir, path) {
			return true
		}
	}
	return false
}

func isUnder(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
