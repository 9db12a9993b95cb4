// Package qualitysearch runs ab-av1 crf-search over analyzed items and
// records the sampled quality/size trade-offs. The winning sample becomes
// the encoding stage's input.
package qualitysearch

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"log/slog"

	"squeeze/internal/abav1"
	"squeeze/internal/admission"
	"squeeze/internal/config"
	"squeeze/internal/logging"
	"squeeze/internal/queue"
	"squeeze/internal/services"
	"squeeze/internal/stage"
)

// Searcher drives one crf-search per item and persists every sample.
type Searcher struct {
	cfg       *config.Config
	store     *queue.Store
	logger    *slog.Logger
	client    abav1.Client
	admission *admission.Controller
}

// NewSearcher constructs the quality-search handler with the default
// ab-av1 client and a live admission controller.
func NewSearcher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Searcher {
	return NewSearcherWithDependencies(cfg, store, logger, abav1.NewCLI(), admission.NewController(cfg, logger))
}

// NewSearcherWithDependencies allows injecting custom dependencies (used for tests).
func NewSearcherWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client abav1.Client, controller *admission.Controller) *Searcher {
	return &Searcher{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "quality-search"),
		client:    client,
		admission: controller,
	}
}

func (s *Searcher) Prepare(ctx context.Context, item *queue.Item) error {
	return stage.RequireSourceFile(item)
}

func (s *Searcher) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, s.logger)
	start := time.Now()

	if minutes := s.cfg.QualitySearch.TimeoutMinutes; minutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(minutes)*time.Minute)
		defer cancel()
	}

	decision := s.admission.Decide(ctx, admission.SiteVideoProcessing)
	params := abav1.SearchParams{
		Input:      item.SourcePath,
		TargetVMAF: s.cfg.QualitySearch.TargetVMAF,
		MinCRF:     s.cfg.QualitySearch.MinCRF,
		MaxCRF:     s.cfg.QualitySearch.MaxCRF,
		Preset:     s.cfg.QualitySearch.Preset,
		Threads:    decision.Concurrency,
	}
	logger.Info("starting quality search",
		logging.String("input", item.SourcePath),
		logging.Float64("target_vmaf", params.TargetVMAF),
		logging.Int("threads", params.Threads),
	)
	s.reportProgress(ctx, logger, item.ID, "searching for target quality", 5)

	var persistErr error
	sampleCount := 0
	onSample := func(sample abav1.Sample) {
		sampleCount++
		result := &queue.QualityResult{
			ItemID:                  item.ID,
			CRF:                     sample.CRF,
			PredictedScore:          sample.VMAF,
			PredictedSizeBytes:      sample.PredictedSizeBytes,
			PredictedSavingsPercent: sample.SavingsPercent(),
		}
		if err := s.store.UpsertResult(ctx, result); err != nil && persistErr == nil {
			persistErr = err
		}
		logger.Info("quality sample",
			logging.Float64("crf", sample.CRF),
			logging.Float64("vmaf", sample.VMAF),
			logging.Float64("predicted_savings_percent", sample.SavingsPercent()),
		)
		percent := float64(5 + sampleCount*15)
		if percent > 90 {
			percent = 90
		}
		message := fmt.Sprintf("sampled crf %g (vmaf %.2f)", sample.CRF, sample.VMAF)
		s.reportProgress(ctx, logger, item.ID, message, percent)
	}

	result, err := s.client.CrfSearch(ctx, params, onSample)
	if err != nil {
		return err
	}
	if persistErr != nil {
		return persistErr
	}

	best := result.Best
	if floor := float64(s.cfg.QualitySearch.MinSavingsPercent); best.SavingsPercent() < floor {
		return services.Wrap(
			services.ErrValidation,
			"quality-search",
			"judge savings",
			fmt.Sprintf("predicted savings %.1f%% is below the %.0f%% floor; the file is already well compressed", best.SavingsPercent(), floor),
			nil,
		)
	}
	if err := s.store.ChooseResult(ctx, item.ID, best.CRF); err != nil {
		return err
	}
	s.reportProgress(ctx, logger, item.ID, "quality search complete", 100)

	logger.Info("quality search complete",
		logging.Float64("chosen_crf", best.CRF),
		logging.Float64("predicted_vmaf", best.VMAF),
		logging.Float64("predicted_savings_percent", best.SavingsPercent()),
		logging.Int64("predicted_size_bytes", best.PredictedSizeBytes),
		logging.Int("samples", sampleCount),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *Searcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "quality-search"
	if s.cfg == nil || s.store == nil {
		return stage.Unhealthy(name, "stage not configured")
	}
	if s.client == nil {
		return stage.Unhealthy(name, "ab-av1 client unavailable")
	}
	if _, err := exec.LookPath(abav1.BinaryName); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("%s not found in PATH", abav1.BinaryName))
	}
	return stage.Healthy(name)
}

func (s *Searcher) reportProgress(ctx context.Context, logger *slog.Logger, itemID int64, message string, percent float64) {
	if err := s.store.SetProgress(ctx, itemID, "quality_search", message, percent); err != nil {
		logger.Warn("failed to record progress", logging.Error(err))
	}
}

var _ stage.Handler = (*Searcher)(nil)
