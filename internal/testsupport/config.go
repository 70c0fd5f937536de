package testsupport

import (
	"path/filepath"
	"testing"

	"sift/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and intervals short enough for tests to exercise timing behavior directly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	cfg.Worker.PollInterval = 1
	cfg.Worker.MaxPollInterval = 1
	cfg.Worker.HeartbeatInterval = 1
	cfg.Worker.StaleAfter = 2
	cfg.Worker.StaleSweepInterval = 1
	cfg.Worker.ShutdownGrace = 2
	cfg.Retry.StageMaxRetries = 1
	cfg.Retry.StageBaseDelay = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithConcurrency overrides the worker concurrency on the test config.
func WithConcurrency(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Worker.Concurrency = n
	}
}

// WithWorkerID pins the worker identity on the test config.
func WithWorkerID(id string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Worker.ID = id
	}
}
