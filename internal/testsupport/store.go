package testsupport

import (
	"context"
	"testing"

	"sift/internal/config"
	"sift/internal/media"
	"sift/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// EnqueueFile enqueues a file-kind job for tests and returns the result.
func EnqueueFile(t testing.TB, store *queue.Store, path string, maxAttempts int) queue.EnqueueResult {
	t.Helper()

	src, err := media.ParseSource("file", path, "")
	if err != nil {
		t.Fatalf("media.ParseSource: %v", err)
	}
	input, err := src.Marshal()
	if err != nil {
		t.Fatalf("source.Marshal: %v", err)
	}
	res, err := store.Enqueue(context.Background(), input, src.Key(), 0, maxAttempts)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return res
}

// MustGetJob fetches a job by id, failing the test when it is absent.
func MustGetJob(t testing.TB, store *queue.Store, id int64) *queue.Job {
	t.Helper()

	job, err := store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetByID: %v", err)
	}
	if job == nil {
		t.Fatalf("job %d not found", id)
	}
	return job
}
