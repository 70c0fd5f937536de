package pipeline

import (
	"errors"
	"testing"
)

func TestContextCleanupRunsOnceInReverseOrder(t *testing.T) {
	pc := newTestContext()

	var order []string
	pc.RegisterCleanup(func() error {
		order = append(order, "first")
		return nil
	})
	pc.RegisterCleanup(func() error {
		order = append(order, "second")
		return nil
	})

	if err := pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("cleanups must run newest first, got %v", order)
	}

	if err := pc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("cleanups must run exactly once, got %v", order)
	}
}

func TestContextCleanupCollectsErrors(t *testing.T) {
	pc := newTestContext()
	boom := errors.New("unlink failed")
	pc.RegisterCleanup(func() error { return boom })
	pc.RegisterCleanup(func() error { return nil })

	err := pc.Close()
	if !errors.Is(err, boom) {
		t.Fatalf("expected cleanup error surfaced, got %v", err)
	}
}

func TestContextNotesAndProgress(t *testing.T) {
	pc := newTestContext()
	defer pc.Close()

	pc.SetNote("checksum", "abc123")
	if v, ok := pc.Note("checksum"); !ok || v != "abc123" {
		t.Fatalf("unexpected note: %q %v", v, ok)
	}

	notes := pc.Notes()
	notes["checksum"] = "mutated"
	if v, _ := pc.Note("checksum"); v != "abc123" {
		t.Fatal("Notes must return a copy")
	}

	pc.SetProgress("transcribe", 40)
	stage, pct := pc.Progress()
	if stage != "transcribe" || pct != 40 {
		t.Fatalf("unexpected progress: %s %f", stage, pct)
	}
}
