// Package analysis probes queued files and records their media
// characteristics so the downstream stages can order and judge them.
package analysis

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"log/slog"

	"squeeze/internal/config"
	"squeeze/internal/logging"
	"squeeze/internal/media"
	"squeeze/internal/queue"
	"squeeze/internal/services"
	"squeeze/internal/stage"
)

var probeSource = media.Probe

// Analyzer inspects a queue item's source file with ffprobe and persists the
// probed characteristics onto the item.
type Analyzer struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewAnalyzer constructs the analysis stage handler.
func NewAnalyzer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "analysis"),
	}
}

func (a *Analyzer) Prepare(ctx context.Context, item *queue.Item) error {
	return stage.RequireSourceFile(item)
}

func (a *Analyzer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, a.logger)
	start := time.Now()

	if err := a.store.SetProgress(ctx, item.ID, "analysis", "probing container", 10); err != nil {
		logger.Warn("failed to record progress", logging.Error(err))
	}

	info, err := probeSource(ctx, "", item.SourcePath)
	if err != nil {
		return err
	}
	if !info.HasVideo() {
		return services.Wrap(services.ErrValidation, "analysis", "inspect streams",
			fmt.Sprintf("%s has no video stream", item.SourcePath), nil)
	}
	if a.codecSkipped(info.VideoCodec) {
		return services.Wrap(services.ErrValidation, "analysis", "inspect streams",
			fmt.Sprintf("codec %s is on the skip list", info.VideoCodec), nil)
	}

	applyInfo(item, info)
	if item.SizeBytes <= 0 {
		if stat, statErr := os.Stat(item.SourcePath); statErr == nil {
			item.SizeBytes = stat.Size()
		}
	}
	if item.BitrateKbps <= 0 && item.DurationSeconds > 0 && item.SizeBytes > 0 {
		// ffprobe omits bit_rate for some containers; derive it from the
		// file size instead so queue ordering still works.
		item.BitrateKbps = int64(float64(item.SizeBytes) * 8 / item.DurationSeconds / 1000)
	}

	if err := a.store.Update(ctx, item); err != nil {
		return err
	}
	if err := a.store.SetProgress(ctx, item.ID, "analysis", "analysis complete", 100); err != nil {
		logger.Warn("failed to record progress", logging.Error(err))
	}

	logger.Info("analysis complete",
		logging.String("video_codec", item.VideoCodec),
		logging.String("resolution", item.Resolution()),
		logging.Int64("bitrate_kbps", item.BitrateKbps),
		logging.Float64("duration_seconds", item.DurationSeconds),
		logging.Int64("size_bytes", item.SizeBytes),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (a *Analyzer) HealthCheck(ctx context.Context) stage.Health {
	const name = "analysis"
	if a.cfg == nil || a.store == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if _, err := exec.LookPath(media.BinaryName); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("%s not found in PATH", media.BinaryName))
	}
	return stage.Healthy(name)
}

func (a *Analyzer) codecSkipped(codec string) bool {
	codec = strings.TrimSpace(codec)
	if codec == "" || a.cfg == nil {
		return false
	}
	for _, skip := range a.cfg.Library.SkipCodecs {
		if strings.EqualFold(strings.TrimSpace(skip), codec) {
			return true
		}
	}
	return false
}

func applyInfo(item *queue.Item, info *media.Info) {
	item.VideoCodec = info.VideoCodec
	item.Width = info.Width
	item.Height = info.Height
	item.DurationSeconds = info.DurationSeconds
	if info.SizeBytes > 0 {
		item.SizeBytes = info.SizeBytes
	}
	if info.BitrateKbps > 0 {
		item.BitrateKbps = info.BitrateKbps
	}
}

var _ stage.Handler = (*Analyzer)(nil)
