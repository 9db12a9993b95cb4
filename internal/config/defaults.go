package config

const (
	defaultStagingDir       = "~/.local/share/squeeze/staging"
	defaultLogDir           = "~/.local/share/squeeze/logs"
	defaultAPIBind          = "127.0.0.1:7917"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60

	defaultMinSizeMiB    = 100
	defaultSettleSeconds = 10

	defaultTargetVMAF        = 95.0
	defaultMinCRF            = 10
	defaultMaxCRF            = 55
	defaultSearchPreset      = 6
	defaultMinSavingsPercent = 5
	defaultSearchTimeoutMin  = 120
	defaultEncodeTimeoutMin  = 600

	defaultPollIntervalSeconds = 2
	defaultProbeTimeoutSeconds = 1
	defaultRecoveryThreshold   = 900

	defaultLowMemoryGiB   = 2.0
	defaultLoadHighWater  = 0.8
	defaultTierProbeFiles = 16

	defaultNotifyRequestTimeout     = 10
	defaultNotifyQueueMinItems      = 2
	defaultNotifyDedupWindowSeconds = 600
	defaultNotifyRatePerMinute      = 10
)

func defaultExtensions() []string {
	return []string{".mkv", ".mp4", ".m4v", ".mov", ".avi", ".ts"}
}

func defaultSkipCodecs() []string {
	return []string{"av1"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Library: Library{
			Extensions:     defaultExtensions(),
			MinSizeMiB:     defaultMinSizeMiB,
			SkipCodecs:     defaultSkipCodecs(),
			ReplaceInPlace: true,
		},
		Watch: Watch{
			Enabled:       true,
			SettleSeconds: defaultSettleSeconds,
		},
		QualitySearch: QualitySearch{
			TargetVMAF:        defaultTargetVMAF,
			MinCRF:            defaultMinCRF,
			MaxCRF:            defaultMaxCRF,
			Preset:            defaultSearchPreset,
			MinSavingsPercent: defaultMinSavingsPercent,
			TimeoutMinutes:    defaultSearchTimeoutMin,
		},
		Encoding: Encoding{
			Preset:         defaultSearchPreset,
			TimeoutMinutes: defaultEncodeTimeoutMin,
			ValidateOutput: true,
		},
		Pipeline: Pipeline{
			PollInterval:      defaultPollIntervalSeconds,
			ProbeTimeout:      defaultProbeTimeoutSeconds,
			RecoveryThreshold: defaultRecoveryThreshold,
		},
		Admission: Admission{
			LowMemoryGiB:   defaultLowMemoryGiB,
			LoadHighWater:  defaultLoadHighWater,
			TierProbeFiles: defaultTierProbeFiles,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			QueueAdds:          true,
			QualitySearch:      true,
			Encoding:           true,
			Errors:             true,
			QueueMinItems:      defaultNotifyQueueMinItems,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
			RatePerMinute:      defaultNotifyRatePerMinute,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
