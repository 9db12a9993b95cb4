// Package daemonrun assembles and runs the squeeze daemon process: logging,
// queue store, pipeline stages, filesystem watcher, notifications, and the
// IPC surface. Both the squeezed binary and `squeeze daemon` call Run.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"squeeze/internal/abav1"
	"squeeze/internal/admission"
	"squeeze/internal/analysis"
	"squeeze/internal/config"
	"squeeze/internal/daemon"
	"squeeze/internal/encoding"
	"squeeze/internal/events"
	"squeeze/internal/ipc"
	"squeeze/internal/logging"
	"squeeze/internal/notifications"
	"squeeze/internal/pipeline"
	"squeeze/internal/preflight"
	"squeeze/internal/qualitysearch"
	"squeeze/internal/queue"
	"squeeze/internal/watch"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket location. Empty means the
	// default path under the configured log directory.
	SocketPath string
}

// Run starts the squeeze daemon runtime loop and blocks until the context
// is canceled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("squeeze-%s.log", runID))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("squeeze-%s.events", runID))
	logStream := logging.NewEventStream()
	journal, journalErr := logging.NewEventJournal(eventsPath)
	if journalErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log journal: %v\n", journalErr)
	} else if journal != nil {
		logStream.AddSink(journal)
		defer journal.Close()
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Stream:           logStream,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update squeeze.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "squeeze-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "squeeze-*.events", Exclude: []string{eventsPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "squeezed.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	hub := events.NewHub(1024)
	notifier := notifications.NewService(cfg)
	controller := admission.NewController(cfg, logger)
	tier := controller.DetectTier(signalCtx)
	logger.Info("storage tier detected",
		logging.String(logging.FieldEventType, "storage_tier_detected"),
		logging.String("tier", string(tier)))

	client := abav1.NewCLI()
	manager := pipeline.NewManager(cfg, store, logger, hub, notifications.NewPipelineNotifier(notifier, logger))
	if err := manager.ConfigureStages(pipeline.StageSet{
		Analysis:      analysis.NewAnalyzer(cfg, store, logger),
		QualitySearch: qualitysearch.NewSearcherWithDependencies(cfg, store, logger, client, controller),
		Encoding:      encoding.NewEncoderWithDependencies(cfg, store, logger, client, controller),
	}); err != nil {
		return fmt.Errorf("configure stages: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, manager, hub, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	d.SetNotifier(notifier)

	if cfg.Watch.Enabled {
		d.AttachWatcher(watch.NewWatcher(cfg, store, logger, controller, d.HandleLibraryAdds))
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.LogDir, "squeeze.sock")
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon will not process queue items"),
		)
	}

	<-signalCtx.Done()
	logger.Info("squeeze daemon shutting down")
	return nil
}

// ensureCurrentLogPointer keeps LogDir/squeeze.log pointing at the active
// run's log file. Hard links cover filesystems without symlink support.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "squeeze.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logDependencySnapshot records external binary availability once at boot so
// operators can see missing tools without waiting for a stage failure.
func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, dep := range preflight.CheckSystemDeps(cfg) {
		key := strings.ToLower(strings.ReplaceAll(dep.Name, "-", "_"))
		attrs = append(attrs,
			logging.Bool(key+"_available", dep.Available),
			logging.String(key+"_command", dep.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
