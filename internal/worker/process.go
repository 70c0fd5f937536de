package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"sift/internal/events"
	"sift/internal/logging"
	"sift/internal/media"
	"sift/internal/pipeline"
	"sift/internal/queue"
	"sift/internal/services"
)

// runOutcome is the output_json persisted on a succeeded job.
type runOutcome struct {
	ProducedID   string            `json:"produced_id,omitempty"`
	ElapsedMS    int64             `json:"elapsed_ms"`
	ShortCircuit bool              `json:"short_circuit,omitempty"`
	Completed    []string          `json:"completed,omitempty"`
	Skipped      []string          `json:"skipped,omitempty"`
	Failed       []string          `json:"failed,omitempty"`
	Notes        map[string]string `json:"notes,omitempty"`
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	defer w.wg.Done()
	defer func() { <-w.slots }()

	log := w.logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.Int(logging.FieldAttempt, job.Attempts),
	)

	src, err := media.UnmarshalSource(job.InputJSON)
	if err != nil {
		w.reportFailure(log, job, services.Wrap(services.ErrValidation, "", "decode input", "", err))
		return
	}

	requestID := uuid.NewString()
	pc := pipeline.NewContext(job.ID, requestID, src, filepath.Join(w.cfg.Paths.WorkDir, requestID))
	defer func() {
		if err := pc.Close(); err != nil {
			log.Warn("cleanup failed", logging.Error(err))
		}
	}()

	log.Info("job started", logging.String(logging.FieldRequestID, requestID))
	w.publisher.Publish(events.Event{
		Type:     events.TypeClaimed,
		JobID:    job.ID,
		WorkerID: w.id,
		Attempts: job.Attempts,
	})

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout())
	defer cancel()

	stopHeartbeat := w.startHeartbeat(job.ID, pc)
	result, runErr := w.runner.Run(jobCtx, pc)
	stopHeartbeat()

	switch {
	case runErr == nil:
		w.reportSuccess(log, job, result)
	case ctx.Err() != nil && errors.Is(runErr, context.Canceled):
		// Worker shutdown, not a job fault. Put it back without spending
		// an attempt.
		w.requeue(log, job)
	case errors.Is(runErr, context.DeadlineExceeded):
		w.reportFailure(log, job, services.Wrap(services.ErrTimeout, "", "run",
			fmt.Sprintf("exceeded %s wall clock", w.jobTimeout()), nil))
	default:
		w.reportFailure(log, job, runErr)
	}
}

func (w *Worker) reportSuccess(log *slog.Logger, job *queue.Job, result *pipeline.Result) {
	outcome := runOutcome{
		ProducedID:   result.ProducedID,
		ElapsedMS:    result.Elapsed.Milliseconds(),
		ShortCircuit: result.ShortCut,
		Completed:    result.Completed,
		Skipped:      result.Skipped,
		Failed:       result.Failed,
		Notes:        result.Notes,
	}
	encoded, err := json.Marshal(outcome)
	if err != nil {
		encoded = []byte("{}")
	}

	ctx, cancel := storeContext()
	defer cancel()
	if err := w.store.Complete(ctx, job.ID, string(encoded), result.ProducedID); err != nil {
		// Lease may have been reclaimed out from under us; the job will
		// run again and dedupe on the artifact.
		log.Error("complete failed", logging.Error(err))
		return
	}
	log.Info("job succeeded",
		logging.String("produced_id", result.ProducedID),
		logging.Duration("elapsed", result.Elapsed),
	)
	w.publisher.Publish(events.Event{
		Type:       events.TypeSucceeded,
		JobID:      job.ID,
		WorkerID:   w.id,
		ProducedID: result.ProducedID,
	})
}

func (w *Worker) reportFailure(log *slog.Logger, job *queue.Job, runErr error) {
	code := services.Code(runErr)
	permanent := services.Classify(runErr) == services.KindPermanent

	ctx, cancel := storeContext()
	defer cancel()
	if err := w.store.Fail(ctx, job.ID, runErr.Error(), code, permanent); err != nil {
		log.Error("failure report failed", logging.Error(err))
		return
	}

	updated, err := w.store.GetByID(ctx, job.ID)
	if err != nil || updated == nil {
		log.Error("job fetch after failure", logging.Error(err))
		return
	}
	if updated.Status == queue.StatusFailed {
		log.Error("job dead-lettered",
			logging.Error(runErr),
			logging.String(logging.FieldErrorCode, code),
			logging.Int(logging.FieldAttempt, updated.Attempts),
		)
		w.publisher.Publish(events.Event{
			Type:      events.TypeDeadLettered,
			JobID:     job.ID,
			WorkerID:  w.id,
			ErrorCode: code,
			Attempts:  updated.Attempts,
		})
		return
	}
	log.Warn("job will retry",
		logging.Error(runErr),
		logging.String(logging.FieldErrorCode, code),
		logging.Int(logging.FieldAttempt, updated.Attempts),
	)
	w.publisher.Publish(events.Event{
		Type:      events.TypeRetried,
		JobID:     job.ID,
		WorkerID:  w.id,
		ErrorCode: code,
		Attempts:  updated.Attempts,
	})
}

func (w *Worker) requeue(log *slog.Logger, job *queue.Job) {
	ctx, cancel := storeContext()
	defer cancel()
	if err := w.store.Requeue(ctx, job.ID, w.id, "worker shutting down"); err != nil {
		log.Error("requeue failed", logging.Error(err))
		return
	}
	log.Info("job requeued for shutdown")
	w.publisher.Publish(events.Event{
		Type:     events.TypeRequeued,
		JobID:    job.ID,
		WorkerID: w.id,
	})
}
