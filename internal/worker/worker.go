package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sift/internal/config"
	"sift/internal/events"
	"sift/internal/logging"
	"sift/internal/pipeline"
	"sift/internal/queue"
)

// Runner abstracts the pipeline executor for the worker.
type Runner interface {
	Run(ctx context.Context, pc *pipeline.Context) (*pipeline.Result, error)
}

// Worker claims jobs and executes them through a Runner.
type Worker struct {
	cfg       *config.Config
	store     *queue.Store
	runner    Runner
	publisher events.Publisher
	logger    *slog.Logger
	id        string

	slots chan struct{}
	wg    sync.WaitGroup
}

// New builds a worker. A nil publisher disables event emission.
func New(cfg *config.Config, store *queue.Store, runner Runner, publisher events.Publisher, logger *slog.Logger) *Worker {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	id := cfg.Worker.ID
	if id == "" {
		id = GenerateID()
	}
	return &Worker{
		cfg:       cfg,
		store:     store,
		runner:    runner,
		publisher: publisher,
		logger: logging.NewComponentLogger(logger, "worker").With(
			logging.String(logging.FieldWorkerID, id),
		),
		id:    id,
		slots: make(chan struct{}, concurrency),
	}
}

// ID returns the worker identity used for lease stamping.
func (w *Worker) ID() string { return w.id }

// GenerateID derives a worker identity from the hostname plus a random
// suffix, so restarted processes never inherit a predecessor's leases.
func GenerateID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", strings.ToLower(host), uuid.NewString()[:8])
}

// Run executes the worker loop until ctx is cancelled, then drains in-flight
// jobs within the shutdown grace period. Jobs still running after the grace
// period requeue themselves via their cancelled contexts.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting",
		logging.Int("concurrency", cap(w.slots)),
		logging.Duration("poll_interval", w.pollInterval()),
	)

	sweep := time.NewTicker(w.sweepInterval())
	defer sweep.Stop()

	idleDelay := w.pollInterval()
	for {
		select {
		case <-ctx.Done():
			return w.drain()
		case <-sweep.C:
			w.releaseStale()
			continue
		default:
		}

		busy := len(w.slots) == cap(w.slots)
		if !busy {
			claimed, err := w.claimAndDispatch(ctx)
			if err != nil {
				w.logger.Error("claim failed", logging.Error(err))
			}
			if claimed > 0 {
				idleDelay = w.pollInterval()
				continue
			}
		}

		// Saturated slots are not an empty queue: keep the base poll
		// cadence so a freed slot picks up queued work promptly, and only
		// grow the backoff on genuinely empty polls.
		wait := idleDelay
		if busy {
			wait = w.pollInterval()
			idleDelay = w.pollInterval()
		}

		select {
		case <-ctx.Done():
			return w.drain()
		case <-sweep.C:
			w.releaseStale()
		case <-time.After(wait):
			if !busy {
				idleDelay = minDuration(idleDelay*2, w.maxPollInterval())
			}
		}
	}
}

// RunOnce claims and processes a single batch synchronously, returning the
// number of jobs handled. Used by `sift worker --once`.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	claimed, err := w.claimAndDispatch(ctx)
	if err != nil {
		return 0, err
	}
	w.wg.Wait()
	return claimed, nil
}

// Maintenance releases stale leases and returns the count handled. Used by
// `sift worker --maintenance`.
func (w *Worker) Maintenance(ctx context.Context) (int64, error) {
	return w.store.ReleaseStaleJobs(ctx, w.staleAfter())
}

func (w *Worker) claimAndDispatch(ctx context.Context) (int, error) {
	free := cap(w.slots) - len(w.slots)
	if free == 0 {
		return 0, nil
	}
	limit := w.cfg.Worker.ClaimLimit
	if limit <= 0 || limit > free {
		limit = free
	}

	jobs, err := w.store.ClaimJobs(ctx, limit, w.id)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		w.slots <- struct{}{}
		w.wg.Add(1)
		go w.process(ctx, job)
	}
	return len(jobs), nil
}

func (w *Worker) releaseStale() {
	ctx, cancel := storeContext()
	defer cancel()
	released, err := w.store.ReleaseStaleJobs(ctx, w.staleAfter())
	if err != nil {
		w.logger.Error("stale release failed", logging.Error(err))
		return
	}
	if released > 0 {
		w.logger.Warn("released stale jobs", logging.Int64("count", released))
	}
}

func (w *Worker) drain() error {
	w.logger.Info("draining in-flight jobs",
		logging.Duration("grace", w.shutdownGrace()),
	)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info("worker stopped")
		return nil
	case <-time.After(w.shutdownGrace()):
		w.logger.Warn("shutdown grace expired with jobs still in flight")
		return fmt.Errorf("shutdown grace of %s expired", w.shutdownGrace())
	}
}

func (w *Worker) pollInterval() time.Duration {
	return secondsOr(w.cfg.Worker.PollInterval, 2*time.Second)
}

func (w *Worker) maxPollInterval() time.Duration {
	return secondsOr(w.cfg.Worker.MaxPollInterval, 30*time.Second)
}

func (w *Worker) sweepInterval() time.Duration {
	return secondsOr(w.cfg.Worker.StaleSweepInterval, time.Minute)
}

func (w *Worker) staleAfter() time.Duration {
	return secondsOr(w.cfg.Worker.StaleAfter, 2*time.Minute)
}

func (w *Worker) jobTimeout() time.Duration {
	return secondsOr(w.cfg.Worker.JobTimeout, time.Hour)
}

func (w *Worker) heartbeatInterval() time.Duration {
	return secondsOr(w.cfg.Worker.HeartbeatInterval, 15*time.Second)
}

func (w *Worker) shutdownGrace() time.Duration {
	return secondsOr(w.cfg.Worker.ShutdownGrace, 30*time.Second)
}

func secondsOr(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// storeContext returns a short-lived context detached from the worker loop,
// so outcome reporting still works while the worker is shutting down.
func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
