// Package encoding runs the final ab-av1 encode at the chosen CRF and
// delivers the artifact where the library expects it.
package encoding

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"squeeze/internal/abav1"
	"squeeze/internal/admission"
	"squeeze/internal/config"
	"squeeze/internal/fileutil"
	"squeeze/internal/logging"
	"squeeze/internal/media"
	"squeeze/internal/metrics"
	"squeeze/internal/queue"
	"squeeze/internal/services"
	"squeeze/internal/stage"
)

const (
	minEncodedFileSizeBytes = 5 * 1024 * 1024
	progressPersistInterval = 2 * time.Second
)

var encodeProbe = media.Probe

// Encoder encodes an item's source file with the chosen quality parameter
// and places the output either over the source or into the output directory.
type Encoder struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	client    abav1.Client
	admission *admission.Controller
}

// NewEncoder constructs the encoding handler with the default ab-av1 client
// and a live admission controller.
func NewEncoder(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Encoder {
	return NewEncoderWithDependencies(cfg, store, logger, abav1.NewCLI(), admission.NewController(cfg, logger))
}

// NewEncoderWithDependencies allows injecting custom dependencies (used for tests).
func NewEncoderWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client abav1.Client, controller *admission.Controller) *Encoder {
	return &Encoder{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "encoding"),
		client:    client,
		admission: controller,
	}
}

func (e *Encoder) Prepare(ctx context.Context, item *queue.Item) error {
	return stage.RequireSourceFile(item)
}

func (e *Encoder) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, e.logger)
	start := time.Now()

	chosen, err := e.store.ChosenResult(ctx, item.ID)
	if err != nil {
		return err
	}
	if chosen == nil {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"load chosen result",
			"no chosen quality result; rerun quality search",
			nil,
		)
	}

	if minutes := e.cfg.Encoding.TimeoutMinutes; minutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(minutes)*time.Minute)
		defer cancel()
	}

	stagingRoot := item.StagingRoot(e.cfg.Paths.StagingDir)
	if stagingRoot == "" {
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"resolve staging dir",
			"staging directory is not configured",
			nil,
		)
	}
	encodedDir := filepath.Join(stagingRoot, "encoded")
	if err := e.resetEncodedDir(logger, encodedDir); err != nil {
		return err
	}
	if err := os.MkdirAll(encodedDir, 0o755); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"ensure encoded dir",
			"failed to create the encoded directory; set staging_dir to a writable path",
			err,
		)
	}

	outputPath := filepath.Join(encodedDir, encodedFilename(item.SourcePath))
	decision := e.admission.Decide(ctx, admission.SiteVideoProcessing)
	logger.Info("launching encode",
		logging.String("input", item.SourcePath),
		logging.String("output", outputPath),
		logging.Float64("crf", chosen.CRF),
		logging.Int("preset", e.cfg.Encoding.Preset),
		logging.Int("threads", decision.Concurrency),
		logging.Float64("predicted_savings_percent", chosen.PredictedSavingsPercent),
	)

	sampler := logging.NewProgressSampler(5)
	var lastPersisted time.Time
	onProgress := func(p abav1.EncodeProgress) {
		message := progressMessage(p)
		if sampler.ShouldLog(p.Percent, "encoding", message) {
			logger.Info("encode progress",
				logging.Float64("progress_percent", p.Percent),
				logging.Float64("fps", p.FPS),
				logging.Int("eta_seconds", p.ETASeconds),
			)
		}
		now := time.Now()
		if p.Percent < 100 && !lastPersisted.IsZero() && now.Sub(lastPersisted) < progressPersistInterval {
			return
		}
		lastPersisted = now
		if err := e.store.SetProgress(ctx, item.ID, "encoding", message, p.Percent); err != nil {
			logger.Warn("failed to persist encode progress", logging.Error(err))
		}
	}

	if err := e.client.Encode(ctx, abav1.EncodeParams{
		Input:   item.SourcePath,
		Output:  outputPath,
		CRF:     chosen.CRF,
		Preset:  e.cfg.Encoding.Preset,
		Threads: decision.Concurrency,
	}, onProgress); err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return services.Wrap(
			services.ErrExternalTool,
			"encoding",
			"locate output",
			"encode reported success but produced no artifact",
			err,
		)
	}
	if e.cfg.Encoding.ValidateOutput {
		if err := e.validateArtifact(ctx, outputPath, info.Size(), item.DurationSeconds); err != nil {
			return err
		}
	}
	if item.SizeBytes > 0 && info.Size() >= item.SizeBytes {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"judge savings",
			fmt.Sprintf("encoded file (%d bytes) is not smaller than the source (%d bytes); keeping the original", info.Size(), item.SizeBytes),
			nil,
		)
	}

	finalPath := e.destinationPath(item)
	if err := fileutil.Place(outputPath, finalPath); err != nil {
		return services.Wrap(
			services.ErrTransient,
			"encoding",
			"place artifact",
			fmt.Sprintf("failed to deliver the encoded file to %s", finalPath),
			err,
		)
	}
	if e.cfg.Library.ReplaceInPlace && !strings.EqualFold(finalPath, item.SourcePath) {
		if err := os.Remove(item.SourcePath); err != nil {
			logger.Warn("failed to remove replaced source",
				logging.String("source", item.SourcePath),
				logging.Error(err),
			)
		}
	}
	if err := os.RemoveAll(stagingRoot); err != nil {
		logger.Warn("failed to clean staging root",
			logging.String("staging_root", stagingRoot),
			logging.Error(err),
		)
	}

	var savings float64
	if item.SizeBytes > 0 {
		savings = (1 - float64(info.Size())/float64(item.SizeBytes)) * 100
	}
	metrics.ObserveEncodeSavings(savings)

	item.FinalPath = finalPath
	item.ProgressStage = "encoding"
	item.ProgressPercent = 100
	item.ProgressMessage = fmt.Sprintf("encoded to %s", filepath.Base(finalPath))
	if err := e.store.Update(ctx, item); err != nil {
		return err
	}

	logger.Info("encode complete",
		logging.String("final_path", finalPath),
		logging.Float64("crf", chosen.CRF),
		logging.Int64("source_bytes", item.SizeBytes),
		logging.Int64("encoded_bytes", info.Size()),
		logging.Float64("savings_percent", savings),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (e *Encoder) HealthCheck(ctx context.Context) stage.Health {
	const name = "encoding"
	if e.cfg == nil || e.store == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if strings.TrimSpace(e.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if e.client == nil {
		return stage.Unhealthy(name, "ab-av1 client unavailable")
	}
	if _, err := exec.LookPath(abav1.BinaryName); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("%s not found in PATH", abav1.BinaryName))
	}
	if e.cfg.Encoding.ValidateOutput {
		if _, err := exec.LookPath(media.BinaryName); err != nil {
			return stage.Unhealthy(name, fmt.Sprintf("%s not found in PATH", media.BinaryName))
		}
	}
	return stage.Healthy(name)
}

// resetEncodedDir clears artifacts left behind by an interrupted attempt so
// a requeued item starts from a clean directory.
func (e *Encoder) resetEncodedDir(logger *slog.Logger, encodedDir string) error {
	info, err := os.Stat(encodedDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"inspect encoded dir",
			"failed to inspect previous encoded artifacts",
			err,
		)
	}
	if !info.IsDir() {
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"inspect encoded dir",
			fmt.Sprintf("expected encoded path %q to be a directory", encodedDir),
			nil,
		)
	}
	if err := os.RemoveAll(encodedDir); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"encoding",
			"remove stale artifacts",
			"failed to remove previous encoded outputs",
			err,
		)
	}
	logger.Debug("removed stale encoded artifacts", logging.String("encoded_dir", encodedDir))
	return nil
}

func (e *Encoder) validateArtifact(ctx context.Context, path string, sizeBytes int64, sourceDuration float64) error {
	if sizeBytes < minEncodedFileSizeBytes {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate output",
			fmt.Sprintf("encoded file %q is unexpectedly small (%d bytes)", path, sizeBytes),
			nil,
		)
	}
	probe, err := encodeProbe(ctx, "", path)
	if err != nil {
		return services.Wrap(
			services.ErrExternalTool,
			"encoding",
			"validate output",
			"failed to inspect the encoded file with ffprobe",
			err,
		)
	}
	if !probe.HasVideo() {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate output",
			"encoded file does not contain a video stream",
			nil,
		)
	}
	if probe.DurationSeconds <= 0 {
		return services.Wrap(
			services.ErrValidation,
			"encoding",
			"validate output",
			"encoded file duration could not be determined",
			nil,
		)
	}
	if sourceDuration > 0 {
		tolerance := sourceDuration * 0.01
		if tolerance < 5 {
			tolerance = 5
		}
		if diff := math.Abs(probe.DurationSeconds - sourceDuration); diff > tolerance {
			return services.Wrap(
				services.ErrValidation,
				"encoding",
				"validate output",
				fmt.Sprintf("encoded duration %.1fs deviates from the source duration %.1fs", probe.DurationSeconds, sourceDuration),
				nil,
			)
		}
	}
	return nil
}

func (e *Encoder) destinationPath(item *queue.Item) string {
	filename := encodedFilename(item.SourcePath)
	if e.cfg.Library.ReplaceInPlace {
		return filepath.Join(filepath.Dir(item.SourcePath), filename)
	}
	return filepath.Join(e.cfg.Paths.OutputDir, filename)
}

func encodedFilename(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "encoded"
	}
	return stem + ".mkv"
}

func progressMessage(p abav1.EncodeProgress) string {
	base := fmt.Sprintf("encoding %.1f%%", p.Percent)
	extras := make([]string, 0, 2)
	if p.FPS > 0 {
		extras = append(extras, fmt.Sprintf("%.1f fps", p.FPS))
	}
	if p.ETASeconds > 0 {
		extras = append(extras, "ETA "+formatETA(time.Duration(p.ETASeconds)*time.Second))
	}
	if len(extras) == 0 {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, strings.Join(extras, ", "))
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}

var _ stage.Handler = (*Encoder)(nil)
