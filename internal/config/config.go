package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	// DataDir holds the queue database.
	DataDir string `toml:"data_dir"`
	// LogDir holds the worker log file and worker lock files.
	LogDir string `toml:"log_dir"`
	// WorkDir is the parent of per-attempt scratch directories.
	WorkDir string `toml:"work_dir"`
	// ArtifactDir receives enrichment records written by the index stage.
	ArtifactDir string `toml:"artifact_dir"`
}

// Worker contains worker loop tuning.
type Worker struct {
	Concurrency        int    `toml:"concurrency"`
	ClaimLimit         int    `toml:"claim_limit"`
	PollInterval       int    `toml:"poll_interval_seconds"`
	MaxPollInterval    int    `toml:"max_poll_interval_seconds"`
	JobTimeout         int    `toml:"job_timeout_seconds"`
	HeartbeatInterval  int    `toml:"heartbeat_interval_seconds"`
	StaleAfter         int    `toml:"stale_after_seconds"`
	StaleSweepInterval int    `toml:"stale_sweep_interval_seconds"`
	ShutdownGrace      int    `toml:"shutdown_grace_seconds"`
	DefaultMaxAttempts int    `toml:"default_max_attempts"`
	RetryBackoffBase   int    `toml:"retry_backoff_base_seconds"`
	ID                 string `toml:"id"`
}

// Retry contains per-stage retry tuning inside a single pipeline run.
type Retry struct {
	StageMaxRetries int `toml:"stage_max_retries"`
	StageBaseDelay  int `toml:"stage_base_delay_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Events contains configuration for the optional NATS lifecycle publisher.
type Events struct {
	Enabled bool   `toml:"enabled"`
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// Fetch contains configuration for the media fetch stage.
type Fetch struct {
	RequestTimeout int   `toml:"request_timeout_seconds"`
	MaxBytes       int64 `toml:"max_bytes"`
}

// Config encapsulates all configuration values for sift.
//
// Configuration sections by subsystem:
//   - Paths: data, log, scratch, and artifact directories
//   - Worker: concurrency, claim sizing, poll/heartbeat/stale intervals
//   - Retry: in-run stage retry policy
//   - Logging: log format and level
//   - Events: NATS lifecycle event publication
//   - Fetch: media download limits
type Config struct {
	Paths   Paths   `toml:"paths"`
	Worker  Worker  `toml:"worker"`
	Retry   Retry   `toml:"retry"`
	Logging Logging `toml:"logging"`
	Events  Events  `toml:"events"`
	Fetch   Fetch   `toml:"fetch"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sift/config.toml")
}

// Load locates, parses, and validates a configuration file. A .env file in
// the working directory is applied to the environment first so SIFT_*
// overrides work in container deployments. The returned config has all path
// fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	_ = godotenv.Load()

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

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("SIFT_NATS_URL")); v != "" {
		c.Events.NATSURL = v
		c.Events.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("SIFT_DATA_DIR")); v != "" {
		c.Paths.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SIFT_LOG_LEVEL")); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("SIFT_WORKER_ID")); v != "" {
		c.Worker.ID = v
	}
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
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("sift.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for worker operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.WorkDir, c.Paths.ArtifactDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
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
