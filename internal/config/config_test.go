package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"squeeze/internal/config"
)

func TestLoadDefaultsExpandPathsAndRequireRoots(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	// Default config watches the library, so roots are required.
	if _, _, _, err := config.Load(""); err == nil {
		t.Fatal("expected validation error when watch is enabled without roots")
	}

	configPath := filepath.Join(tempHome, "squeeze.toml")
	root := filepath.Join(tempHome, "media")
	writeConfig(t, configPath, map[string]any{
		"library": map[string]any{"roots": []string{root}},
	})

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "squeeze", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7917" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if len(cfg.Library.Roots) != 1 || cfg.Library.Roots[0] != root {
		t.Fatalf("unexpected roots: %v", cfg.Library.Roots)
	}
	if !cfg.Library.ReplaceInPlace {
		t.Fatal("expected replace_in_place default true")
	}
	if cfg.QualitySearch.TargetVMAF != 95 {
		t.Fatalf("unexpected target vmaf: %v", cfg.QualitySearch.TargetVMAF)
	}
	if cfg.Pipeline.PollInterval != 2 || cfg.Pipeline.ProbeTimeout != 1 {
		t.Fatalf("unexpected pipeline timing: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.RecoveryThreshold != 900 {
		t.Fatalf("unexpected recovery threshold: %d", cfg.Pipeline.RecoveryThreshold)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomOverrides(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "squeeze.toml")
	writeConfig(t, configPath, map[string]any{
		"library": map[string]any{
			"roots":      []string{tempDir},
			"extensions": []string{"MKV", "mkv", " .mp4 "},
		},
		"quality_search": map[string]any{
			"target_vmaf": 93.5,
			"max_crf":     40,
		},
		"pipeline": map[string]any{
			"poll_interval": 5,
		},
	})

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.QualitySearch.TargetVMAF != 93.5 {
		t.Fatalf("expected target vmaf override, got %v", cfg.QualitySearch.TargetVMAF)
	}
	if cfg.QualitySearch.MaxCRF != 40 {
		t.Fatalf("expected max crf override, got %d", cfg.QualitySearch.MaxCRF)
	}
	if cfg.Pipeline.PollInterval != 5 {
		t.Fatalf("expected poll interval override, got %d", cfg.Pipeline.PollInterval)
	}
	want := []string{".mkv", ".mp4"}
	if len(cfg.Library.Extensions) != len(want) {
		t.Fatalf("expected deduplicated extensions %v, got %v", want, cfg.Library.Extensions)
	}
	for i, ext := range want {
		if cfg.Library.Extensions[i] != ext {
			t.Fatalf("extension[%d] = %q, want %q", i, cfg.Library.Extensions[i], ext)
		}
	}
}

func TestEnvFallbacks(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "squeeze.toml")
	writeConfig(t, configPath, map[string]any{
		"library": map[string]any{"roots": []string{tempDir}},
	})

	t.Setenv("SQUEEZE_NTFY_TOPIC", "env-topic")
	t.Setenv("SQUEEZE_API_TOKEN", "env-token")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "env-topic" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Paths.APIToken != "env-token" {
		t.Fatalf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "target_vmaf") {
		t.Fatalf("sample config missing quality search section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.QualitySearch.TargetVMAF != 95 {
		t.Fatalf("sample target vmaf = %v, want 95", cfg.QualitySearch.TargetVMAF)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Library.Roots = []string{"/media"}
		return cfg
	}

	cfg := base()
	cfg.QualitySearch.MinCRF = 50
	cfg.QualitySearch.MaxCRF = 40
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when min_crf >= max_crf")
	}

	cfg = base()
	cfg.QualitySearch.TargetVMAF = 120
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range target vmaf")
	}

	cfg = base()
	cfg.Pipeline.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive poll interval")
	}

	cfg = base()
	cfg.Admission.LoadHighWater = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for load high water above 1")
	}

	cfg = base()
	cfg.Library.ReplaceInPlace = false
	cfg.Paths.OutputDir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when replace_in_place is false without output_dir")
	}

	cfg = base()
	cfg.Notifications.QueueMinItems = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for queue_min_items below 1")
	}
}

func writeConfig(t *testing.T, path string, payload map[string]any) {
	t.Helper()
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}
