package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"sift/internal/logging"
	"sift/internal/media"
	"sift/internal/services"
)

type fakeHandler struct {
	BaseHandler
	shouldRun func(*Context) (bool, error)
	validate  func(*Context) error
	execute   func(*Context) error
	onError   func(*Context, error)

	executions int
}

func (f *fakeHandler) ShouldRun(_ context.Context, pc *Context) (bool, error) {
	if f.shouldRun == nil {
		return true, nil
	}
	return f.shouldRun(pc)
}

func (f *fakeHandler) ValidateInputs(_ context.Context, pc *Context) error {
	if f.validate == nil {
		return nil
	}
	return f.validate(pc)
}

func (f *fakeHandler) Execute(_ context.Context, pc *Context) error {
	f.executions++
	if f.execute == nil {
		return nil
	}
	return f.execute(pc)
}

func (f *fakeHandler) OnError(_ context.Context, pc *Context, err error) {
	if f.onError != nil {
		f.onError(pc, err)
	}
}

func newTestContext() *Context {
	src, _ := media.ParseSource("file", "/media/test.mkv", "")
	return NewContext(1, "req-1", src, "/tmp/work")
}

func runPipeline(t *testing.T, stages []Stage, retries int) (*Result, error) {
	t.Helper()
	exec := NewExecutor(logging.NewNop(), stages, retries, time.Millisecond)
	pc := newTestContext()
	t.Cleanup(func() { pc.Close() })
	return exec.Run(context.Background(), pc)
}

func TestRunAllStagesSucceed(t *testing.T) {
	a := &fakeHandler{}
	b := &fakeHandler{}
	result, err := runPipeline(t, []Stage{
		{Name: "fetch", Handler: a},
		{Name: "index", Handler: b},
	}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if len(result.Completed) != 2 || result.Completed[0] != "fetch" || result.Completed[1] != "index" {
		t.Fatalf("unexpected completed list: %v", result.Completed)
	}
	if a.executions != 1 || b.executions != 1 {
		t.Fatalf("each stage must execute exactly once: %d %d", a.executions, b.executions)
	}
}

func TestRunRecordsSkippedStages(t *testing.T) {
	skipped := &fakeHandler{shouldRun: func(*Context) (bool, error) { return false, nil }}
	after := &fakeHandler{}
	result, err := runPipeline(t, []Stage{
		{Name: "checksum", Optional: true, Handler: skipped},
		{Name: "index", Handler: after},
	}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if skipped.executions != 0 {
		t.Fatal("skipped stage must not execute")
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "checksum" {
		t.Fatalf("unexpected skipped list: %v", result.Skipped)
	}
	if after.executions != 1 {
		t.Fatal("stages after a skip must still run")
	}
}

func TestRunOptionalStageInvalidInputsSkips(t *testing.T) {
	var onErrorCalled bool
	unready := &fakeHandler{
		validate: func(*Context) error {
			return services.Wrap(services.ErrValidation, "checksum", "validate", "no media file fetched", nil)
		},
		onError: func(*Context, error) { onErrorCalled = true },
	}
	after := &fakeHandler{}
	result, err := runPipeline(t, []Stage{
		{Name: "checksum", Optional: true, Handler: unready},
		{Name: "index", Handler: after},
	}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatal("missing inputs on an optional stage must not fail the run")
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "checksum" {
		t.Fatalf("optional stage with invalid inputs must be skipped, got skipped=%v failed=%v", result.Skipped, result.Failed)
	}
	if len(result.Failed) != 0 {
		t.Fatalf("skip must not be recorded as a failure: %v", result.Failed)
	}
	if unready.executions != 0 {
		t.Fatal("execute must not run when validation fails")
	}
	if onErrorCalled {
		t.Fatal("OnError must not fire for a skip")
	}
	if after.executions != 1 {
		t.Fatal("later stages must still run")
	}
}

func TestRunValidationFailureIsPermanent(t *testing.T) {
	bad := &fakeHandler{validate: func(*Context) error { return errors.New("missing media file") }}
	_, err := runPipeline(t, []Stage{{Name: "transcribe", Handler: bad}}, 3)
	if err == nil {
		t.Fatal("expected run failure")
	}
	if services.Classify(err) != services.KindPermanent {
		t.Fatalf("validation failures must classify permanent, got %s", services.Classify(err))
	}
	if bad.executions != 0 {
		t.Fatal("execute must not run when validation fails")
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	flaky := &fakeHandler{}
	flaky.execute = func(*Context) error {
		if flaky.executions < 3 {
			return services.Wrap(services.ErrTransient, "fetch", "download", "connection reset", nil)
		}
		return nil
	}
	result, err := runPipeline(t, []Stage{{Name: "fetch", Handler: flaky}}, 2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatal("expected eventual success")
	}
	if flaky.executions != 3 {
		t.Fatalf("expected 3 executions (1 + 2 retries), got %d", flaky.executions)
	}
}

func TestRunExhaustsStageRetries(t *testing.T) {
	flaky := &fakeHandler{execute: func(*Context) error {
		return services.Wrap(services.ErrTransient, "fetch", "download", "still down", nil)
	}}
	_, err := runPipeline(t, []Stage{{Name: "fetch", Handler: flaky}}, 2)
	if err == nil {
		t.Fatal("expected run failure after retries")
	}
	if flaky.executions != 3 {
		t.Fatalf("expected exactly max retries + 1 executions, got %d", flaky.executions)
	}
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	var sawErr error
	broken := &fakeHandler{
		execute: func(*Context) error {
			return services.Wrap(services.ErrValidation, "inspect", "probe", "not a media container", nil)
		},
		onError: func(_ *Context, err error) { sawErr = err },
	}
	_, err := runPipeline(t, []Stage{{Name: "inspect", Handler: broken}}, 5)
	if err == nil {
		t.Fatal("expected run failure")
	}
	if broken.executions != 1 {
		t.Fatalf("permanent failure must not retry, got %d executions", broken.executions)
	}
	if sawErr == nil {
		t.Fatal("OnError must be invoked for the final failure")
	}
}

func TestRunOptionalStageFailureContinues(t *testing.T) {
	broken := &fakeHandler{execute: func(*Context) error {
		return services.Wrap(services.ErrPermanent, "score", "model", "scorer unavailable", nil)
	}}
	after := &fakeHandler{}
	result, err := runPipeline(t, []Stage{
		{Name: "score", Optional: true, Handler: broken},
		{Name: "index", Handler: after},
	}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatal("optional failure must not abort the run")
	}
	if len(result.Failed) != 1 || result.Failed[0] != "score" {
		t.Fatalf("unexpected failed list: %v", result.Failed)
	}
	if after.executions != 1 {
		t.Fatal("stages after an optional failure must still run")
	}
	if _, ok := result.Notes["failed:score"]; !ok {
		t.Fatalf("expected failure note, got %v", result.Notes)
	}
}

func TestRunMandatoryFailureStopsPipeline(t *testing.T) {
	broken := &fakeHandler{execute: func(*Context) error {
		return services.Wrap(services.ErrNotFound, "fetch", "download", "404", nil)
	}}
	after := &fakeHandler{}
	_, err := runPipeline(t, []Stage{
		{Name: "fetch", Handler: broken},
		{Name: "index", Handler: after},
	}, 0)
	if err == nil {
		t.Fatal("expected run failure")
	}
	if after.executions != 0 {
		t.Fatal("stages after a mandatory failure must not run")
	}
}

func TestRunAlreadyExistsShortCircuits(t *testing.T) {
	dedupe := &fakeHandler{execute: func(pc *Context) error {
		pc.ArtifactID = "existing-artifact"
		return services.Wrap(services.ErrAlreadyExists, "dedupe", "lookup", "source already enriched", nil)
	}}
	after := &fakeHandler{}
	result, err := runPipeline(t, []Stage{
		{Name: "dedupe", Handler: dedupe},
		{Name: "fetch", Handler: after},
	}, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || !result.ShortCut {
		t.Fatalf("already-exists must end the run as a short-circuit success: %+v", result)
	}
	if result.ProducedID != "existing-artifact" {
		t.Fatalf("expected the existing artifact id, got %q", result.ProducedID)
	}
	if after.executions != 0 {
		t.Fatal("remaining stages must not run after a short-circuit")
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakeHandler{execute: func(*Context) error {
		cancel()
		return nil
	}}
	after := &fakeHandler{}
	exec := NewExecutor(logging.NewNop(), []Stage{
		{Name: "fetch", Handler: first},
		{Name: "index", Handler: after},
	}, 0, time.Millisecond)
	pc := newTestContext()
	defer pc.Close()

	_, err := exec.Run(ctx, pc)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if after.executions != 0 {
		t.Fatal("no stage may start after cancellation")
	}
}
