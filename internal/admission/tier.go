package admission

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"squeeze/internal/logging"
)

// Tier classifies the measured performance of the library storage.
type Tier string

const (
	TierUnknown  Tier = "unknown"
	TierStandard Tier = "standard"
	TierHigh     Tier = "high_performance"
	TierUltra    Tier = "ultra_high_performance"
)

// tierPolicy fixes the scaling and clamps applied once the tier is known.
// Unknown storage never scales up and keeps tight bounds until a probe
// succeeds.
type tierPolicy struct {
	multiplier     float64
	minConcurrency int
	maxConcurrency int
	batchSize      int
}

var tierPolicies = map[Tier]tierPolicy{
	TierUnknown:  {multiplier: 1.0, minConcurrency: 2, maxConcurrency: 8, batchSize: 8},
	TierStandard: {multiplier: 1.2, minConcurrency: 2, maxConcurrency: 16, batchSize: 15},
	TierHigh:     {multiplier: 1.8, minConcurrency: 4, maxConcurrency: 32, batchSize: 50},
	TierUltra:    {multiplier: 2.5, minConcurrency: 4, maxConcurrency: 64, batchSize: 100},
}

// Per-file metadata latency boundaries separating the tiers. Local NVMe
// answers a stat in microseconds; network mounts take milliseconds.
const (
	ultraLatencyCeiling = 200 * time.Microsecond
	highLatencyCeiling  = 2 * time.Millisecond
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}

// Tier returns the cached storage tier, TierUnknown before detection.
func (c *Controller) Tier() Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

// DetectTier times a bulk metadata read across the library roots and caches
// the resulting classification. Run it once at startup (and again whenever
// the library configuration changes); Decide uses the cached value. A probe
// that finds no files leaves the tier unknown.
func (c *Controller) DetectTier(ctx context.Context) Tier {
	limit := c.cfg.Admission.TierProbeFiles
	if limit <= 0 {
		limit = 16
	}

	start := c.now()
	sampled := 0
	for _, root := range c.cfg.Library.Roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil || d == nil || !d.Type().IsRegular() {
				return nil
			}
			if _, infoErr := d.Info(); infoErr != nil {
				return nil
			}
			sampled++
			if sampled >= limit {
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil && ctx.Err() != nil {
			return c.Tier()
		}
		if sampled >= limit {
			break
		}
	}
	elapsed := c.now().Sub(start)

	if sampled == 0 {
		c.logger.InfoContext(ctx, "storage tier probe found no files, staying unknown")
		c.setTier(TierUnknown)
		return TierUnknown
	}

	perFile := elapsed / time.Duration(sampled)
	tier := classifyLatency(perFile)
	c.setTier(tier)

	attrs := []logging.Attr{
		logging.String("storage_tier", string(tier)),
		logging.Int("files_sampled", sampled),
		logging.Duration("per_file_latency", perFile),
	}
	if len(c.cfg.Library.Roots) > 0 {
		if total, free, err := c.statfs(c.cfg.Library.Roots[0]); err == nil {
			attrs = append(attrs,
				logging.Uint64("fs_total_bytes", total),
				logging.Uint64("fs_free_bytes", free),
			)
		}
	}
	c.logger.InfoContext(ctx, "storage tier detected", logging.Args(attrs...)...)
	return tier
}

// classifyLatency maps a per-file metadata latency onto a tier. Any storage
// that answered the probe is at least standard.
func classifyLatency(perFile time.Duration) Tier {
	switch {
	case perFile <= ultraLatencyCeiling:
		return TierUltra
	case perFile <= highLatencyCeiling:
		return TierHigh
	default:
		return TierStandard
	}
}

func (c *Controller) setTier(tier Tier) {
	c.mu.Lock()
	c.tier = tier
	c.tierProbedAt = c.now()
	c.mu.Unlock()
}
