package worker

import (
	"time"

	"sift/internal/logging"
	"sift/internal/pipeline"
)

// startHeartbeat renews the job's lease on an interval until the returned
// stop function is called. Stop blocks until the goroutine exits so no
// heartbeat can land after the outcome is reported.
func (w *Worker) startHeartbeat(jobID int64, pc *pipeline.Context) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.heartbeatInterval())
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				stage, progress := pc.Progress()
				ctx, cancel := storeContext()
				err := w.store.Heartbeat(ctx, jobID, stage, progress)
				cancel()
				if err != nil {
					w.logger.Warn("heartbeat failed",
						logging.Int64(logging.FieldJobID, jobID),
						logging.Error(err),
					)
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}
