package config

const (
	defaultStagingDir           = "~/.local/share/gavel/staging"
	defaultLibraryDir           = "~/hearings"
	defaultLogDir               = "~/.local/share/gavel/logs"
	defaultRosterPath           = "~/.config/gavel/roster.toml"
	defaultLogRetentionDays     = 60
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultDiscoveryUserAgent   = "Gavel/dev"
	defaultDiscoveryPageTimeout = 30
	defaultDiscoveryCandidates  = 16
	defaultCaptureCodec         = "libopus"
	defaultCaptureBitrate       = "32k"
	defaultCaptureSampleRate    = 16000
	defaultCaptureChannels      = 1
	defaultCaptureTimeoutBase   = 300
	defaultCaptureTimeoutScale  = 2.0
	defaultTrimThresholdDB      = -40.0
	defaultTrimWindowMillis     = 100
	defaultTrimPaddingSeconds   = 0.5
	defaultTranscribeModel      = "general"
	defaultTranscribeLanguage   = "en"
	defaultTranscribeBase       = 600
	defaultTranscribeScale      = 1.5
	defaultLabelMinConfidence   = 0.60
	defaultWorkers              = 2
	defaultPollInterval         = 5
	defaultLeaseTTL             = 120
	defaultLeaseRenewal         = 30
	defaultMaxAttempts          = 3
	defaultRetryBackoffBase     = 60
	defaultRetryBackoffCap      = 3600
	defaultNotifyTimeout        = 10
	defaultNotifyDedupSeconds   = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			RosterPath: defaultRosterPath,
		},
		Discovery: Discovery{
			UserAgent:         defaultDiscoveryUserAgent,
			PageTimeout:       defaultDiscoveryPageTimeout,
			MaxCandidates:     defaultDiscoveryCandidates,
			FollowPlayerLinks: true,
		},
		Capture: Capture{
			Codec:        defaultCaptureCodec,
			Bitrate:      defaultCaptureBitrate,
			SampleRate:   defaultCaptureSampleRate,
			Channels:     defaultCaptureChannels,
			TimeoutBase:  defaultCaptureTimeoutBase,
			TimeoutScale: defaultCaptureTimeoutScale,
		},
		Trim: Trim{
			Enabled:            true,
			SilenceThresholdDB: defaultTrimThresholdDB,
			WindowMillis:       defaultTrimWindowMillis,
			PaddingSeconds:     defaultTrimPaddingSeconds,
		},
		Transcription: Transcription{
			Model:        defaultTranscribeModel,
			Language:     defaultTranscribeLanguage,
			TimeoutBase:  defaultTranscribeBase,
			TimeoutScale: defaultTranscribeScale,
		},
		Labeling: Labeling{
			Enabled:       true,
			MinConfidence: defaultLabelMinConfidence,
		},
		Review: Review{
			AutoApprove: true,
		},
		Pipeline: Pipeline{
			Workers:              defaultWorkers,
			PollInterval:         defaultPollInterval,
			LeaseTTL:             defaultLeaseTTL,
			LeaseRenewalInterval: defaultLeaseRenewal,
			MaxAttempts:          defaultMaxAttempts,
			RetryBackoffBase:     defaultRetryBackoffBase,
			RetryBackoffCap:      defaultRetryBackoffCap,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			Published:          true,
			Stalled:            true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
