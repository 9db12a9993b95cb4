// Package admission computes safe concurrency and batch bounds for the
// pipeline's resource-hungry call sites from live system conditions.
//
// A decision starts from the core count, applies load and memory penalties,
// scales by the measured storage tier, and clamps to tier-specific bounds.
// Every probe failure degrades to a conservative default; admission never
// fails the caller.
package admission

import (
	"context"
	"math"
	"sync"
	"time"

	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"squeeze/internal/config"
	"squeeze/internal/logging"
	"squeeze/internal/metrics"
)

// Site identifies a consumer of admission decisions.
type Site string

const (
	// SiteVideoProcessing bounds external encoder parallelism.
	SiteVideoProcessing Site = "video_processing"
	// SiteMetadataExtraction bounds scanner stat batches and store fetch windows.
	SiteMetadataExtraction Site = "metadata_extraction"
)

const (
	baselineCores    = 4
	wideMachineCores = 16
	wideMachineScale = 1.5
	loadFloor        = 2.0
	fallbackCores    = 4
	bytesPerGiB      = 1024 * 1024 * 1024
)

// Decision is one admission verdict for a call site, carrying the inputs it
// was derived from so status output can explain the bound.
type Decision struct {
	Site           Site    `json:"site"`
	Concurrency    int     `json:"concurrency"`
	BatchSize      int     `json:"batch_size"`
	Tier           Tier    `json:"tier"`
	Cores          int     `json:"cores"`
	Load1          float64 `json:"load_1m"`
	AvailableBytes uint64  `json:"available_bytes"`
}

// Controller derives admission decisions. The storage tier is probed
// separately (DetectTier) and cached; Decide never touches the filesystem.
type Controller struct {
	cfg    *config.Config
	logger *slog.Logger

	mu           sync.Mutex
	tier         Tier
	tierProbedAt time.Time

	cpuCounts     func(ctx context.Context, logical bool) (int, error)
	loadAvg       func(ctx context.Context) (*load.AvgStat, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	statfs        statfsFunc
	now           func() time.Time
}

// NewController builds a controller with live system probes. The tier starts
// unknown until DetectTier runs.
func NewController(cfg *config.Config, logger *slog.Logger) *Controller {
	c := &Controller{
		cfg:           cfg,
		tier:          TierUnknown,
		cpuCounts:     cpu.CountsWithContext,
		loadAvg:       load.AvgWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		statfs:        realStatfs,
		now:           time.Now,
	}
	c.logger = logging.NewComponentLogger(logger, "admission")
	return c
}

// Decide computes the concurrency bound and batch size for a call site.
func (c *Controller) Decide(ctx context.Context, site Site) Decision {
	cores := c.coreCount(ctx)
	load1, loadOK := c.loadAverage(ctx)
	available, memOK := c.availableMemory(ctx)
	tier := c.Tier()
	policy := tierPolicies[tier]

	value := float64(cores)
	if value < baselineCores {
		value = baselineCores
	}
	if cores >= wideMachineCores {
		value *= wideMachineScale
	}

	if loadOK && cores > 0 {
		high := c.cfg.Admission.LoadHighWater
		normalized := load1 / float64(cores)
		if normalized > high {
			// Interpolate toward the floor, saturating at twice the
			// high-water mark.
			excess := math.Min(normalized-high, high)
			value -= (value - loadFloor) * (excess / high)
		}
	}

	lowBytes := uint64(c.cfg.Admission.LowMemoryGiB * bytesPerGiB)
	switch {
	case !memOK:
		value /= 2
	case available < lowBytes:
		value /= 2
	case available < 2*lowBytes:
		value *= 0.8
	}

	value *= policy.multiplier

	concurrency := int(value)
	if concurrency < policy.minConcurrency {
		concurrency = policy.minConcurrency
	}
	if concurrency > policy.maxConcurrency {
		concurrency = policy.maxConcurrency
	}

	decision := Decision{
		Site:           site,
		Concurrency:    concurrency,
		BatchSize:      policy.batchSize,
		Tier:           tier,
		Cores:          cores,
		Load1:          load1,
		AvailableBytes: available,
	}
	metrics.SetAdmissionConcurrency(string(site), concurrency)
	c.logger.DebugContext(ctx, "admission decision",
		logging.String("site", string(site)),
		logging.Int("concurrency", concurrency),
		logging.Int("batch_size", decision.BatchSize),
		logging.String("storage_tier", string(tier)),
		logging.Int("cores", cores),
		logging.Float64("load_1m", load1),
		logging.Uint64("available_bytes", available),
	)
	return decision
}

func (c *Controller) coreCount(ctx context.Context) int {
	cores, err := c.cpuCounts(ctx, true)
	if err != nil || cores <= 0 {
		c.logger.WarnContext(ctx, "cpu probe failed, assuming small machine",
			logging.Int("fallback_cores", fallbackCores),
			logging.Error(err),
		)
		return fallbackCores
	}
	return cores
}

func (c *Controller) loadAverage(ctx context.Context) (float64, bool) {
	avg, err := c.loadAvg(ctx)
	if err != nil || avg == nil {
		c.logger.WarnContext(ctx, "load probe failed, skipping load penalty", logging.Error(err))
		return 0, false
	}
	return avg.Load1, true
}

func (c *Controller) availableMemory(ctx context.Context) (uint64, bool) {
	vm, err := c.virtualMemory(ctx)
	if err != nil || vm == nil {
		c.logger.WarnContext(ctx, "memory probe failed, assuming constrained memory", logging.Error(err))
		return 0, false
	}
	return vm.Available, true
}
