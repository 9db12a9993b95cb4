package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLibrary(); err != nil {
		return err
	}
	if err := c.validateQualitySearch(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if c.Watch.Enabled && len(c.Library.Roots) == 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/squeeze/config.toml"
		}
		return fmt.Errorf("library.roots is required while watch.enabled is true. Edit %s (create with 'squeeze config init') or disable watching", defaultPath)
	}
	if !c.Library.ReplaceInPlace && strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set when library.replace_in_place is false")
	}
	return nil
}

func (c *Config) validateQualitySearch() error {
	if c.QualitySearch.TargetVMAF <= 0 || c.QualitySearch.TargetVMAF > 100 {
		return errors.New("quality_search.target_vmaf must be between 0 and 100")
	}
	if c.QualitySearch.MinCRF < 0 || c.QualitySearch.MinCRF > 63 {
		return errors.New("quality_search.min_crf must be between 0 and 63")
	}
	if c.QualitySearch.MaxCRF <= 0 || c.QualitySearch.MaxCRF > 63 {
		return errors.New("quality_search.max_crf must be between 1 and 63")
	}
	if c.QualitySearch.MinCRF >= c.QualitySearch.MaxCRF {
		return errors.New("quality_search.min_crf must be less than quality_search.max_crf")
	}
	if c.QualitySearch.Preset < 0 || c.QualitySearch.Preset > 13 {
		return errors.New("quality_search.preset must be between 0 and 13")
	}
	if c.QualitySearch.MinSavingsPercent < 0 || c.QualitySearch.MinSavingsPercent >= 100 {
		return errors.New("quality_search.min_savings_percent must be between 0 and 99")
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.Preset < 0 || c.Encoding.Preset > 13 {
		return errors.New("encoding.preset must be between 0 and 13")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	return ensurePositiveMap(map[string]int{
		"pipeline.poll_interval":         c.Pipeline.PollInterval,
		"pipeline.probe_timeout":         c.Pipeline.ProbeTimeout,
		"pipeline.recovery_threshold":    c.Pipeline.RecoveryThreshold,
		"quality_search.timeout_minutes": c.QualitySearch.TimeoutMinutes,
		"encoding.timeout_minutes":       c.Encoding.TimeoutMinutes,
		"watch.settle_seconds":           c.Watch.SettleSeconds,
	})
}

func (c *Config) validateAdmission() error {
	if c.Admission.LowMemoryGiB <= 0 {
		return errors.New("admission.low_memory_gib must be positive")
	}
	if c.Admission.LoadHighWater <= 0 || c.Admission.LoadHighWater > 1 {
		return errors.New("admission.load_high_water must be between 0 and 1")
	}
	if c.Admission.TierProbeFiles <= 0 {
		return errors.New("admission.tier_probe_files must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.QueueMinItems < 1 {
		return errors.New("notifications.queue_min_items must be >= 1")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	if c.Notifications.RatePerMinute <= 0 {
		return errors.New("notifications.rate_per_minute must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
