package config

const (
	defaultDataDir            = "~/.local/share/sift/data"
	defaultLogDir             = "~/.local/share/sift/logs"
	defaultWorkDir            = "~/.local/share/sift/work"
	defaultArtifactDir        = "~/.local/share/sift/artifacts"
	defaultConcurrency        = 2
	defaultClaimLimit         = 4
	defaultPollInterval       = 2
	defaultMaxPollInterval    = 30
	defaultJobTimeout         = 3600
	defaultHeartbeatInterval  = 15
	defaultStaleAfter         = 120
	defaultStaleSweepInterval = 60
	defaultShutdownGrace      = 30
	defaultMaxAttempts        = 3
	defaultRetryBackoffBase   = 30
	defaultStageMaxRetries    = 2
	defaultStageBaseDelayMS   = 500
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultEventSubject       = "sift.jobs"
	defaultFetchTimeout       = 300
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			WorkDir:     defaultWorkDir,
			ArtifactDir: defaultArtifactDir,
		},
		Worker: Worker{
			Concurrency:        defaultConcurrency,
			ClaimLimit:         defaultClaimLimit,
			PollInterval:       defaultPollInterval,
			MaxPollInterval:    defaultMaxPollInterval,
			JobTimeout:         defaultJobTimeout,
			HeartbeatInterval:  defaultHeartbeatInterval,
			StaleAfter:         defaultStaleAfter,
			StaleSweepInterval: defaultStaleSweepInterval,
			ShutdownGrace:      defaultShutdownGrace,
			DefaultMaxAttempts: defaultMaxAttempts,
			RetryBackoffBase:   defaultRetryBackoffBase,
		},
		Retry: Retry{
			StageMaxRetries: defaultStageMaxRetries,
			StageBaseDelay:  defaultStageBaseDelayMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Events: Events{
			Subject: defaultEventSubject,
		},
		Fetch: Fetch{
			RequestTimeout: defaultFetchTimeout,
		},
	}
}
