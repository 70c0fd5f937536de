package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	cfgPath := filepath.Join(base, "sift.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
work_dir = %q
artifact_dir = %q
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "work"),
		filepath.Join(base, "artifacts"),
	)
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func runCommand(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-c", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestEnqueueAndInspect(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, cfgPath, "enqueue", "/media/show.mkv", "--kind", "file")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out, "Enqueued job 1") {
		t.Fatalf("unexpected enqueue output: %s", out)
	}

	// Same source again: idempotent.
	out, err = runCommand(t, cfgPath, "enqueue", "/media/show.mkv", "--kind", "file")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if !strings.Contains(out, "already enqueued as job 1") {
		t.Fatalf("expected idempotent response, got: %s", out)
	}

	out, err = runCommand(t, cfgPath, "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	if !strings.Contains(out, "queued") {
		t.Fatalf("stats must show the queued job: %s", out)
	}

	out, err = runCommand(t, cfgPath, "queue", "show", "1")
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	if !strings.Contains(out, "show.mkv") {
		t.Fatalf("job detail must include the source: %s", out)
	}

	out, err = runCommand(t, cfgPath, "queue", "cancel", "1")
	if err != nil {
		t.Fatalf("queue cancel: %v", err)
	}
	if !strings.Contains(out, "Cancelled job 1") {
		t.Fatalf("unexpected cancel output: %s", out)
	}

	out, err = runCommand(t, cfgPath, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	if !strings.Contains(out, "Removed 1 job(s)") {
		t.Fatalf("unexpected clear output: %s", out)
	}
}

func TestQueueListEmpty(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out, err := runCommand(t, cfgPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(out, "Queue is empty") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestQueueShowUnknownJob(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCommand(t, cfgPath, "queue", "show", "99")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}
