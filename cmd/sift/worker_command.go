package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"sift/internal/config"
	"sift/internal/events"
	"sift/internal/logging"
	"sift/internal/pipeline"
	"sift/internal/queue"
	"sift/internal/stages"
	"sift/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var (
		once        bool
		maintenance bool
		running     bool
		concurrency int
		pollSeconds int
		claimLimit  int
		workerID    string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the enrichment worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Worker.Concurrency = concurrency
			}
			if cmd.Flags().Changed("poll-interval") {
				cfg.Worker.PollInterval = pollSeconds
			}
			if cmd.Flags().Changed("claim-limit") {
				cfg.Worker.ClaimLimit = claimLimit
			}
			if cmd.Flags().Changed("worker-id") {
				cfg.Worker.ID = workerID
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				store.SetRetryBackoffBase(secondsDuration(cfg.Worker.RetryBackoffBase))

				switch {
				case running:
					return printRunningJobs(cmd, store)
				case maintenance:
					released, err := store.ReleaseStaleJobs(cmd.Context(), secondsDuration(cfg.Worker.StaleAfter))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Released %d stale job(s)\n", released)
					return nil
				}

				logger, err := logging.New(logging.Options{
					Level:    cfg.Logging.Level,
					Format:   cfg.Logging.Format,
					FilePath: filepath.Join(cfg.Paths.LogDir, "sift.log"),
				})
				if err != nil {
					return err
				}

				publisher, err := events.New(cfg, logger)
				if err != nil {
					return err
				}
				defer publisher.Close()

				executor := pipeline.NewExecutor(
					logger,
					stages.DefaultPipeline(cfg, store),
					cfg.Retry.StageMaxRetries,
					millisDuration(cfg.Retry.StageBaseDelay),
				)
				w := worker.New(cfg, store, executor, publisher, logger)

				lockPath := filepath.Join(cfg.Paths.LogDir, "worker-"+w.ID()+".lock")
				lock := flock.New(lockPath)
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire worker lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("worker id %s is already running (lock %s held)", w.ID(), lockPath)
				}
				defer func() {
					_ = lock.Unlock()
					_ = os.Remove(lockPath)
				}()

				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				if once {
					handled, err := w.RunOnce(runCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s)\n", handled)
					return nil
				}
				return w.Run(runCtx)
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Process a single claim batch and exit")
	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "Release stale jobs and exit")
	cmd.Flags().BoolVar(&running, "running", false, "Print the in-flight job monitor and exit")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum jobs processed in parallel")
	cmd.Flags().IntVar(&pollSeconds, "poll-interval", 0, "Seconds between empty-queue polls")
	cmd.Flags().IntVar(&claimLimit, "claim-limit", 0, "Maximum jobs claimed per poll")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "Stable worker identity (defaults to hostname plus random suffix)")
	return cmd
}
