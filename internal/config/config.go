package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Library describes where candidate media lives and which files qualify.
type Library struct {
	Roots          []string `toml:"roots"`
	Extensions     []string `toml:"extensions"`
	MinSizeMiB     int      `toml:"min_size_mib"`
	SkipCodecs     []string `toml:"skip_codecs"`
	ReplaceInPlace bool     `toml:"replace_in_place"`
}

// Watch controls filesystem ingestion of new library files.
type Watch struct {
	Enabled       bool `toml:"enabled"`
	SettleSeconds int  `toml:"settle_seconds"`
}

// QualitySearch tunes the CRF search that precedes every encode.
type QualitySearch struct {
	TargetVMAF        float64 `toml:"target_vmaf"`
	MinCRF            int     `toml:"min_crf"`
	MaxCRF            int     `toml:"max_crf"`
	Preset            int     `toml:"preset"`
	MinSavingsPercent int     `toml:"min_savings_percent"`
	TimeoutMinutes    int     `toml:"timeout_minutes"`
}

// Encoding tunes the final encode pass.
type Encoding struct {
	Preset         int  `toml:"preset"`
	TimeoutMinutes int  `toml:"timeout_minutes"`
	ValidateOutput bool `toml:"validate_output"`
}

// Pipeline contains daemon timing and recovery knobs.
type Pipeline struct {
	PollInterval      int `toml:"poll_interval"`
	ProbeTimeout      int `toml:"probe_timeout"`
	RecoveryThreshold int `toml:"recovery_threshold"`
}

// Admission tunes the resource-aware concurrency controller.
type Admission struct {
	LowMemoryGiB   float64 `toml:"low_memory_gib"`
	LoadHighWater  float64 `toml:"load_high_water"`
	TierProbeFiles int     `toml:"tier_probe_files"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	QueueAdds          bool   `toml:"queue_adds"`
	QualitySearch      bool   `toml:"quality_search"`
	Encoding           bool   `toml:"encoding"`
	Errors             bool   `toml:"errors"`
	QueueMinItems      int    `toml:"queue_min_items"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
	RatePerMinute      int    `toml:"rate_per_minute"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Squeeze.
//
// Configuration sections by subsystem:
//   - Paths: staging/output/log directories and API bind address
//   - Library: watched roots, file filters, and placement policy
//   - Watch: filesystem ingestion toggle and settle delay
//   - QualitySearch: VMAF target and CRF search bounds
//   - Encoding: final encode preset and output validation
//   - Pipeline: dispatcher poll interval, probe timeout, auto-recovery
//   - Admission: resource-aware concurrency limits
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Library       Library       `toml:"library"`
	Watch         Watch         `toml:"watch"`
	QualitySearch QualitySearch `toml:"quality_search"`
	Encoding      Encoding      `toml:"encoding"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Admission     Admission     `toml:"admission"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/squeeze/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("squeeze.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation. Library
// roots and the output directory are created best-effort so the daemon can run
// while external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		_ = os.MkdirAll(c.Paths.OutputDir, 0o755)
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// AbAv1Binary returns the ab-av1 executable name used for quality search and
// encoding.
func (c *Config) AbAv1Binary() string {
	return "ab-av1"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
