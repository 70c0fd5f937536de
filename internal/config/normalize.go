package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}

	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = defaultConcurrency
	}
	if c.Worker.ClaimLimit <= 0 {
		c.Worker.ClaimLimit = defaultClaimLimit
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = defaultPollInterval
	}
	if c.Worker.MaxPollInterval < c.Worker.PollInterval {
		c.Worker.MaxPollInterval = defaultMaxPollInterval
	}
	if c.Worker.JobTimeout <= 0 {
		c.Worker.JobTimeout = defaultJobTimeout
	}
	if c.Worker.HeartbeatInterval <= 0 {
		c.Worker.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Worker.StaleAfter <= 0 {
		c.Worker.StaleAfter = defaultStaleAfter
	}
	if c.Worker.StaleSweepInterval <= 0 {
		c.Worker.StaleSweepInterval = defaultStaleSweepInterval
	}
	if c.Worker.ShutdownGrace < 0 {
		c.Worker.ShutdownGrace = defaultShutdownGrace
	}
	if c.Worker.DefaultMaxAttempts <= 0 {
		c.Worker.DefaultMaxAttempts = defaultMaxAttempts
	}
	if c.Worker.RetryBackoffBase <= 0 {
		c.Worker.RetryBackoffBase = defaultRetryBackoffBase
	}
	c.Worker.ID = strings.TrimSpace(c.Worker.ID)

	if c.Retry.StageMaxRetries < 0 {
		c.Retry.StageMaxRetries = defaultStageMaxRetries
	}
	if c.Retry.StageBaseDelay <= 0 {
		c.Retry.StageBaseDelay = defaultStageBaseDelayMS
	}

	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}

	if strings.TrimSpace(c.Events.Subject) == "" {
		c.Events.Subject = defaultEventSubject
	}

	if c.Fetch.RequestTimeout <= 0 {
		c.Fetch.RequestTimeout = defaultFetchTimeout
	}
	return nil
}
