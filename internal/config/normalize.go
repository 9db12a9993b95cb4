package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeWatch()
	c.normalizeQualitySearch()
	c.normalizeEncoding()
	c.normalizePipeline()
	c.normalizeAdmission()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) != "" {
		if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
			return fmt.Errorf("paths.output_dir: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SQUEEZE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLibrary() error {
	roots := make([]string, 0, len(c.Library.Roots))
	seen := make(map[string]struct{}, len(c.Library.Roots))
	for _, root := range c.Library.Roots {
		trimmed := strings.TrimSpace(root)
		if trimmed == "" {
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("library.roots: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Library.Roots = roots

	if len(c.Library.Extensions) == 0 {
		c.Library.Extensions = defaultExtensions()
	} else {
		exts := make([]string, 0, len(c.Library.Extensions))
		seenExt := make(map[string]struct{}, len(c.Library.Extensions))
		for _, ext := range c.Library.Extensions {
			normalized := strings.ToLower(strings.TrimSpace(ext))
			if normalized == "" {
				continue
			}
			if !strings.HasPrefix(normalized, ".") {
				normalized = "." + normalized
			}
			if _, ok := seenExt[normalized]; ok {
				continue
			}
			seenExt[normalized] = struct{}{}
			exts = append(exts, normalized)
		}
		if len(exts) == 0 {
			exts = defaultExtensions()
		}
		c.Library.Extensions = exts
	}

	codecs := make([]string, 0, len(c.Library.SkipCodecs))
	seenCodec := make(map[string]struct{}, len(c.Library.SkipCodecs))
	for _, codec := range c.Library.SkipCodecs {
		normalized := strings.ToLower(strings.TrimSpace(codec))
		if normalized == "" {
			continue
		}
		if _, ok := seenCodec[normalized]; ok {
			continue
		}
		seenCodec[normalized] = struct{}{}
		codecs = append(codecs, normalized)
	}
	c.Library.SkipCodecs = codecs

	if c.Library.MinSizeMiB < 0 {
		c.Library.MinSizeMiB = 0
	}
	return nil
}

func (c *Config) normalizeWatch() {
	if c.Watch.SettleSeconds <= 0 {
		c.Watch.SettleSeconds = defaultSettleSeconds
	}
}

func (c *Config) normalizeQualitySearch() {
	if c.QualitySearch.TargetVMAF <= 0 {
		c.QualitySearch.TargetVMAF = defaultTargetVMAF
	}
	if c.QualitySearch.MaxCRF <= 0 {
		c.QualitySearch.MaxCRF = defaultMaxCRF
	}
	if c.QualitySearch.MinCRF < 0 {
		c.QualitySearch.MinCRF = 0
	}
	if c.QualitySearch.MinSavingsPercent < 0 {
		c.QualitySearch.MinSavingsPercent = 0
	}
	if c.QualitySearch.TimeoutMinutes <= 0 {
		c.QualitySearch.TimeoutMinutes = defaultSearchTimeoutMin
	}
}

func (c *Config) normalizeEncoding() {
	if c.Encoding.TimeoutMinutes <= 0 {
		c.Encoding.TimeoutMinutes = defaultEncodeTimeoutMin
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.PollInterval <= 0 {
		c.Pipeline.PollInterval = defaultPollIntervalSeconds
	}
	if c.Pipeline.ProbeTimeout <= 0 {
		c.Pipeline.ProbeTimeout = defaultProbeTimeoutSeconds
	}
	if c.Pipeline.RecoveryThreshold <= 0 {
		c.Pipeline.RecoveryThreshold = defaultRecoveryThreshold
	}
}

func (c *Config) normalizeAdmission() {
	if c.Admission.LowMemoryGiB <= 0 {
		c.Admission.LowMemoryGiB = defaultLowMemoryGiB
	}
	if c.Admission.LoadHighWater <= 0 || c.Admission.LoadHighWater > 1 {
		c.Admission.LoadHighWater = defaultLoadHighWater
	}
	if c.Admission.TierProbeFiles <= 0 {
		c.Admission.TierProbeFiles = defaultTierProbeFiles
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SQUEEZE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Notifications.RatePerMinute <= 0 {
		c.Notifications.RatePerMinute = defaultNotifyRatePerMinute
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json", "auto":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
