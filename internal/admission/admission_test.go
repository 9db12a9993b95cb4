package admission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"squeeze/internal/logging"
	"squeeze/internal/testsupport"
)

const ampleMemory uint64 = 8 * bytesPerGiB

func newTestController(t *testing.T, cores int, load1 float64, available uint64) *Controller {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	c := NewController(cfg, logging.NewNop())
	c.cpuCounts = func(context.Context, bool) (int, error) { return cores, nil }
	c.loadAvg = func(context.Context) (*load.AvgStat, error) {
		return &load.AvgStat{Load1: load1}, nil
	}
	c.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 2 * ampleMemory, Available: available}, nil
	}
	return c
}

func TestDecideStandardTierFixture(t *testing.T) {
	c := newTestController(t, 8, 0.3, ampleMemory)
	c.setTier(TierStandard)

	first := c.Decide(context.Background(), SiteVideoProcessing)
	if first.Concurrency != 9 {
		t.Fatalf("Concurrency = %d, want 9", first.Concurrency)
	}
	if first.Concurrency < 2 || first.Concurrency > 16 {
		t.Fatalf("Concurrency = %d outside standard bounds", first.Concurrency)
	}
	if first.BatchSize != 15 {
		t.Fatalf("BatchSize = %d, want 15", first.BatchSize)
	}

	second := c.Decide(context.Background(), SiteVideoProcessing)
	if second.Concurrency != first.Concurrency {
		t.Fatalf("repeat decision changed: %d then %d", first.Concurrency, second.Concurrency)
	}
}

func TestDecideUltraTierExceedsStandard(t *testing.T) {
	c := newTestController(t, 8, 0.3, ampleMemory)

	c.setTier(TierStandard)
	standard := c.Decide(context.Background(), SiteVideoProcessing)

	c.setTier(TierUltra)
	ultra := c.Decide(context.Background(), SiteVideoProcessing)
	if ultra.Concurrency != 20 {
		t.Fatalf("Concurrency = %d, want 20", ultra.Concurrency)
	}
	if ultra.Concurrency <= standard.Concurrency {
		t.Fatalf("ultra %d not greater than standard %d", ultra.Concurrency, standard.Concurrency)
	}
	if ultra.Concurrency < 4 || ultra.Concurrency > 64 {
		t.Fatalf("Concurrency = %d outside ultra bounds", ultra.Concurrency)
	}
	if ultra.BatchSize != 100 {
		t.Fatalf("BatchSize = %d, want 100", ultra.BatchSize)
	}
}

func TestDecideWideMachineClampsToTierCeiling(t *testing.T) {
	c := newTestController(t, 32, 0.5, ampleMemory)
	c.setTier(TierHigh)

	got := c.Decide(context.Background(), SiteVideoProcessing)
	if got.Concurrency != 32 {
		t.Fatalf("Concurrency = %d, want ceiling 32", got.Concurrency)
	}
	if got.BatchSize != 50 {
		t.Fatalf("BatchSize = %d, want 50", got.BatchSize)
	}
}

func TestDecideLoadPenalty(t *testing.T) {
	baseline := newTestController(t, 8, 0.3, ampleMemory)
	baseline.setTier(TierStandard)
	unloaded := baseline.Decide(context.Background(), SiteVideoProcessing)

	// Normalized load 1.2 sits halfway to saturation.
	halfway := newTestController(t, 8, 9.6, ampleMemory)
	halfway.setTier(TierStandard)
	mid := halfway.Decide(context.Background(), SiteVideoProcessing)
	if mid.Concurrency >= unloaded.Concurrency {
		t.Fatalf("loaded %d not below unloaded %d", mid.Concurrency, unloaded.Concurrency)
	}
	if mid.Concurrency <= 2 {
		t.Fatalf("halfway penalty hit the floor: %d", mid.Concurrency)
	}

	// Normalized load 2.0 saturates the penalty.
	saturated := newTestController(t, 8, 16, ampleMemory)
	saturated.setTier(TierStandard)
	floor := saturated.Decide(context.Background(), SiteVideoProcessing)
	if floor.Concurrency != 2 {
		t.Fatalf("saturated Concurrency = %d, want floor 2", floor.Concurrency)
	}
}

func TestDecideMemoryPenalties(t *testing.T) {
	low := newTestController(t, 8, 0.3, 1*bytesPerGiB)
	low.setTier(TierStandard)
	if got := low.Decide(context.Background(), SiteVideoProcessing); got.Concurrency != 4 {
		t.Fatalf("low-memory Concurrency = %d, want 4", got.Concurrency)
	}

	tight := newTestController(t, 8, 0.3, 3*bytesPerGiB)
	tight.setTier(TierStandard)
	if got := tight.Decide(context.Background(), SiteVideoProcessing); got.Concurrency != 7 {
		t.Fatalf("tight-memory Concurrency = %d, want 7", got.Concurrency)
	}
}

func TestDecideFailsSoftWhenProbesUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	c := NewController(cfg, logging.NewNop())
	probeDown := errors.New("probe down")
	c.cpuCounts = func(context.Context, bool) (int, error) { return 0, probeDown }
	c.loadAvg = func(context.Context) (*load.AvgStat, error) { return nil, probeDown }
	c.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, probeDown }

	got := c.Decide(context.Background(), SiteMetadataExtraction)
	if got.Tier != TierUnknown {
		t.Fatalf("Tier = %s, want unknown", got.Tier)
	}
	if got.Concurrency != 2 {
		t.Fatalf("Concurrency = %d, want conservative 2", got.Concurrency)
	}
	if got.BatchSize != 8 {
		t.Fatalf("BatchSize = %d, want 8", got.BatchSize)
	}
}

func TestClassifyLatency(t *testing.T) {
	cases := []struct {
		perFile time.Duration
		want    Tier
	}{
		{50 * time.Microsecond, TierUltra},
		{200 * time.Microsecond, TierUltra},
		{500 * time.Microsecond, TierHigh},
		{2 * time.Millisecond, TierHigh},
		{5 * time.Millisecond, TierStandard},
		{250 * time.Millisecond, TierStandard},
	}
	for _, tc := range cases {
		if got := classifyLatency(tc.perFile); got != tc.want {
			t.Errorf("classifyLatency(%s) = %s, want %s", tc.perFile, got, tc.want)
		}
	}
}

func TestDetectTierClassifiesByMeasuredLatency(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		want    Tier
	}{
		{"ultra", 500 * time.Microsecond, TierUltra},
		{"high", 10 * time.Millisecond, TierHigh},
		{"standard", 200 * time.Millisecond, TierStandard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t)
			for i := 0; i < 10; i++ {
				name := fmt.Sprintf("movie-%02d.mkv", i)
				testsupport.WriteFile(t, filepath.Join(cfg.Library.Roots[0], name), 4096)
			}

			c := NewController(cfg, logging.NewNop())
			base := time.Now()
			calls := 0
			c.now = func() time.Time {
				calls++
				if calls == 1 {
					return base
				}
				return base.Add(tc.elapsed)
			}

			if got := c.DetectTier(context.Background()); got != tc.want {
				t.Fatalf("DetectTier = %s, want %s", got, tc.want)
			}
			if got := c.Tier(); got != tc.want {
				t.Fatalf("cached tier = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDetectTierWithoutFilesStaysUnknown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	c := NewController(cfg, logging.NewNop())

	if got := c.DetectTier(context.Background()); got != TierUnknown {
		t.Fatalf("DetectTier = %s, want unknown", got)
	}

	c.cpuCounts = func(context.Context, bool) (int, error) { return 8, nil }
	c.loadAvg = func(context.Context) (*load.AvgStat, error) { return &load.AvgStat{Load1: 0.3}, nil }
	c.virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 2 * ampleMemory, Available: ampleMemory}, nil
	}
	got := c.Decide(context.Background(), SiteMetadataExtraction)
	if got.Concurrency > 8 {
		t.Fatalf("unknown tier Concurrency = %d, want <= 8", got.Concurrency)
	}
	if got.BatchSize != 8 {
		t.Fatalf("unknown tier BatchSize = %d, want 8", got.BatchSize)
	}
}
