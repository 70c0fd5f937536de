package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sift/internal/config"
	"sift/internal/media"
	"sift/internal/pipeline"
	"sift/internal/services"
	"sift/internal/testsupport"
)

func fileContext(t *testing.T, content string) *pipeline.Context {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.mkv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	src, err := media.ParseSource("file", path, "")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	pc := pipeline.NewContext(1, "req-1", src, filepath.Join(dir, "work"))
	t.Cleanup(func() { pc.Close() })
	return pc
}

func TestDedupeFindsExistingArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	pc := fileContext(t, "payload")

	ctx := context.Background()
	stage := NewDedupe(store)
	if err := stage.Execute(ctx, pc); err != nil {
		t.Fatalf("first run must pass through, got %v", err)
	}

	id, err := store.UpsertArtifact(ctx, pc.Source.Key(), "{}")
	if err != nil {
		t.Fatalf("UpsertArtifact: %v", err)
	}

	err = stage.Execute(ctx, pc)
	if !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("expected already-exists, got %v", err)
	}
	if pc.ArtifactID != id {
		t.Fatalf("expected existing artifact id %s, got %s", id, pc.ArtifactID)
	}
}

func TestFetchCopiesLocalFile(t *testing.T) {
	pc := fileContext(t, "media bytes")
	stage := NewFetch(config.Fetch{})

	if err := stage.ValidateInputs(context.Background(), pc); err != nil {
		t.Fatalf("ValidateInputs: %v", err)
	}
	if err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := os.ReadFile(pc.MediaFile)
	if err != nil {
		t.Fatalf("read fetched media: %v", err)
	}
	if string(data) != "media bytes" {
		t.Fatalf("unexpected content: %q", data)
	}
	if !strings.HasPrefix(pc.MediaFile, pc.WorkDir) {
		t.Fatalf("media must land in the work dir: %s", pc.MediaFile)
	}

	if err := pc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(pc.WorkDir); !os.IsNotExist(err) {
		t.Fatal("work dir must be removed by cleanup")
	}
}

func TestFetchMissingFileIsNotFound(t *testing.T) {
	dir := t.TempDir()
	src, err := media.ParseSource("file", filepath.Join(dir, "gone.mkv"), "")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	pc := pipeline.NewContext(1, "req-1", src, filepath.Join(dir, "work"))
	defer pc.Close()

	err = NewFetch(config.Fetch{}).Execute(context.Background(), pc)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestFetchDownloadsURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote media"))
	}))
	defer server.Close()

	src, err := media.ParseSource("url", server.URL+"/video.mp4", "")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	pc := pipeline.NewContext(1, "req-1", src, filepath.Join(t.TempDir(), "work"))
	defer pc.Close()

	if err := NewFetch(config.Fetch{}).Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(pc.MediaFile)
	if err != nil {
		t.Fatalf("read fetched media: %v", err)
	}
	if string(data) != "remote media" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestFetchDownloadErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		marker error
	}{
		{"gone forever", http.StatusNotFound, services.ErrNotFound},
		{"client error", http.StatusForbidden, services.ErrPermanent},
		{"server error", http.StatusInternalServerError, services.ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			src, err := media.ParseSource("url", server.URL+"/video.mp4", "")
			if err != nil {
				t.Fatalf("ParseSource: %v", err)
			}
			pc := pipeline.NewContext(1, "req-1", src, filepath.Join(t.TempDir(), "work"))
			defer pc.Close()

			err = NewFetch(config.Fetch{}).Execute(context.Background(), pc)
			if !errors.Is(err, tc.marker) {
				t.Fatalf("expected %v, got %v", tc.marker, err)
			}
		})
	}
}

func TestFetchEnforcesSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this payload is larger than the limit"))
	}))
	defer server.Close()

	src, err := media.ParseSource("url", server.URL+"/video.mp4", "")
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	pc := pipeline.NewContext(1, "req-1", src, filepath.Join(t.TempDir(), "work"))
	defer pc.Close()

	err = NewFetch(config.Fetch{MaxBytes: 8}).Execute(context.Background(), pc)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected size-limit validation error, got %v", err)
	}
}

func TestChecksumRecordsDigestAndSize(t *testing.T) {
	pc := fileContext(t, "checksum me")
	if err := NewFetch(config.Fetch{}).Execute(context.Background(), pc); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	stage := NewChecksum()
	if run, err := stage.ShouldRun(context.Background(), pc); err != nil || !run {
		t.Fatalf("checksum should run after fetch: %v %v", run, err)
	}
	if err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	sum := sha256.Sum256([]byte("checksum me"))
	if got, _ := pc.Note(NoteChecksum); got != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected checksum: %s", got)
	}
	if got, _ := pc.Note(NoteSize); got != "11" {
		t.Fatalf("unexpected size: %s", got)
	}
}

func TestChecksumSkipsWithoutMedia(t *testing.T) {
	pc := fileContext(t, "unused")
	run, err := NewChecksum().ShouldRun(context.Background(), pc)
	if err != nil {
		t.Fatalf("ShouldRun: %v", err)
	}
	if run {
		t.Fatal("checksum must not run before fetch sets the media file")
	}
}

func TestIndexWritesArtifactAndSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	pc := fileContext(t, "index me")
	pc.SetNote(NoteChecksum, "deadbeef")
	pc.SetNote(NoteSize, "8")

	stage := NewIndex(store, cfg.Paths.ArtifactDir)
	if err := stage.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pc.ArtifactID == "" {
		t.Fatal("index must set the produced artifact id")
	}

	artifact, err := store.ArtifactBySourceKey(context.Background(), pc.Source.Key())
	if err != nil {
		t.Fatalf("ArtifactBySourceKey: %v", err)
	}
	if artifact == nil || artifact.ID != pc.ArtifactID {
		t.Fatalf("expected stored artifact %s, got %+v", pc.ArtifactID, artifact)
	}
	if !strings.Contains(artifact.PayloadJSON, "deadbeef") {
		t.Fatalf("payload must carry the checksum: %s", artifact.PayloadJSON)
	}

	snapshot := filepath.Join(cfg.Paths.ArtifactDir, pc.ArtifactID+".json")
	if _, err := os.Stat(snapshot); err != nil {
		t.Fatalf("expected snapshot file: %v", err)
	}
}

func TestDefaultPipelineOrderAndInsert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	stages := DefaultPipeline(cfg, store)
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	want := []string{"dedupe", "fetch", "checksum", "index"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected order: %v", names)
		}
	}

	extended := Insert(stages, "index", pipeline.Stage{Name: "transcribe"})
	if extended[3].Name != "transcribe" || extended[4].Name != "index" {
		t.Fatalf("insert before index failed: %+v", extended)
	}
	appended := Insert(stages, "missing", pipeline.Stage{Name: "score"})
	if appended[len(appended)-1].Name != "score" {
		t.Fatalf("insert with unknown anchor must append: %+v", appended)
	}
}
