package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sift/internal/config"
)

func TestDefaultNormalizes(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be reported missing")
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected absolute data dir, got %q", cfg.Paths.DataDir)
	}
	if cfg.Worker.Concurrency <= 0 {
		t.Fatalf("expected positive concurrency, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.MaxPollInterval < cfg.Worker.PollInterval {
		t.Fatal("max poll interval must not undercut poll interval")
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`data_dir = "` + filepath.Join(dir, "data") + `"`,
		"[worker]",
		"concurrency = 7",
		"stale_after_seconds = 300",
		"[logging]",
		`format = "json"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be used, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Worker.Concurrency != 7 {
		t.Fatalf("expected concurrency 7, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.HeartbeatInterval = 120
	cfg.Worker.StaleAfter = 60
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected stale/heartbeat inversion to be rejected")
	}

	cfg = config.Default()
	cfg.Events.Enabled = true
	cfg.Events.NATSURL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing nats url to be rejected")
	}

	cfg = config.Default()
	cfg.Logging.Format = "yaml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported log format to be rejected")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected second WriteSample to fail")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.ArtifactDir = filepath.Join(dir, "artifacts")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.WorkDir, cfg.Paths.ArtifactDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", d, err)
		}
	}
}
