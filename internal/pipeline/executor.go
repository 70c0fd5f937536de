package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sift/internal/logging"
	"sift/internal/services"
)

// Result summarizes a finished pipeline run.
type Result struct {
	Success    bool
	ShortCut   bool
	ProducedID string
	Elapsed    time.Duration
	Completed  []string
	Skipped    []string
	Failed     []string
	Notes      map[string]string
}

// Executor drives the configured stages against a run context.
type Executor struct {
	stages     []Stage
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
}

// NewExecutor builds an executor. maxRetries bounds in-run retries per stage
// (0 means a single attempt); baseDelay seeds the exponential retry delay.
func NewExecutor(logger *slog.Logger, stages []Stage, maxRetries int, baseDelay time.Duration) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Executor{
		stages:     stages,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Stages returns the configured stage names in execution order.
func (e *Executor) Stages() []string {
	names := make([]string, 0, len(e.stages))
	for _, stage := range e.stages {
		names = append(names, stage.Name)
	}
	return names
}

// Run executes the stages in order. A mandatory stage failure aborts the run
// and returns the error; optional stage failures are recorded and execution
// continues. An ErrAlreadyExists from any stage ends the run early as a
// success. The caller owns pc and must Close it regardless of outcome.
func (e *Executor) Run(ctx context.Context, pc *Context) (*Result, error) {
	start := time.Now()
	log := e.logger.With(
		logging.Int64(logging.FieldJobID, pc.JobID),
		logging.String(logging.FieldRequestID, pc.RequestID),
	)

	var runErr error
	for i, stage := range e.stages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		pc.SetProgress(stage.Name, float64(i)/float64(len(e.stages))*100)
		stageLog := log.With(logging.String(logging.FieldStage, stage.Name))

		run, err := stage.Handler.ShouldRun(ctx, pc)
		if err == nil && !run {
			err = services.ErrSkipped
		}
		if errors.Is(err, services.ErrSkipped) {
			stageLog.Info("stage skipped")
			pc.recordSkipped(stage.Name)
			continue
		}
		if err == nil {
			if verr := stage.Handler.ValidateInputs(ctx, pc); verr != nil {
				// Missing inputs on an optional stage mean it does not
				// apply to this run, not that the run is broken.
				if stage.Optional {
					stageLog.Info("optional stage inputs unavailable, skipping", logging.Error(verr))
					pc.recordSkipped(stage.Name)
					continue
				}
				if services.Classify(verr) == services.KindUnknown {
					verr = services.Wrap(services.ErrValidation, stage.Name, "validate inputs", "", verr)
				}
				err = verr
			}
		}
		if err == nil {
			err = e.executeWithRetry(ctx, stageLog, stage, pc)
		}

		switch {
		case err == nil:
			pc.recordCompleted(stage.Name)
		case errors.Is(err, services.ErrAlreadyExists):
			stageLog.Info("work already done, ending run early")
			pc.recordCompleted(stage.Name)
			result := e.buildResult(pc, start)
			result.Success = true
			result.ShortCut = true
			return result, nil
		case errors.Is(err, services.ErrSkipped):
			stageLog.Info("stage skipped")
			pc.recordSkipped(stage.Name)
		case stage.Optional:
			stageLog.Warn("optional stage failed, continuing",
				logging.Error(err),
				logging.String(logging.FieldErrorCode, services.Code(err)),
			)
			stage.Handler.OnError(ctx, pc, err)
			pc.recordFailed(stage.Name)
			pc.SetNote("failed:"+stage.Name, err.Error())
		default:
			stageLog.Error("stage failed",
				logging.Error(err),
				logging.String(logging.FieldErrorCode, services.Code(err)),
			)
			stage.Handler.OnError(ctx, pc, err)
			pc.recordFailed(stage.Name)
			runErr = err
		}
		if runErr != nil {
			break
		}
	}

	result := e.buildResult(pc, start)
	if runErr != nil {
		return result, runErr
	}
	result.Success = true
	pc.SetProgress("", 100)
	return result, nil
}

// executeWithRetry runs a stage, retrying transient failures with exponential
// delay. Retries here never touch the job's attempt budget; only a whole-job
// failure does that.
func (e *Executor) executeWithRetry(ctx context.Context, log *slog.Logger, stage Stage, pc *Context) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.baseDelay << (attempt - 1)
			log.Info("retrying stage",
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("delay", delay),
			)
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
		}
		lastErr = stage.Handler.Execute(ctx, pc)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, services.ErrAlreadyExists) || errors.Is(lastErr, services.ErrSkipped) {
			return lastErr
		}
		if !services.Retryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (e *Executor) buildResult(pc *Context, start time.Time) *Result {
	return &Result{
		ProducedID: pc.ArtifactID,
		Elapsed:    time.Since(start),
		Completed:  pc.Completed(),
		Skipped:    pc.Skipped(),
		Failed:     pc.Failed(),
		Notes:      pc.Notes(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
