package queue

import (
	"context"
	"fmt"
	"time"
)

// ErrCode values persisted alongside failures the store itself produces.
const (
	errCodeStale    = "stale"
	errCodeShutdown = "shutdown"
)

// maxRetryBackoff caps the exponential retry delay.
const maxRetryBackoff = time.Hour

// ClaimJobs atomically leases up to limit eligible jobs to workerID and
// returns them. Eligible means queued, or retry with run_after in the past.
// Selection orders by priority (higher first) then creation time. The whole
// claim is a single UPDATE, so concurrent claimers can never receive the same
// job; contention shrinks the claim, never duplicates it.
func (s *Store) ClaimJobs(ctx context.Context, limit int, workerID string) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	if workerID == "" {
		return nil, fmt.Errorf("worker id is required to claim jobs")
	}

	now := formatTime(time.Now())
	rows, err := s.db.QueryContext(
		ctx,
		`UPDATE jobs
         SET status = ?, locked_by = ?, locked_at = ?, heartbeat_stage = NULL,
             heartbeat_progress = 0, heartbeat_at = ?, run_after = NULL, updated_at = ?
         WHERE id IN (
             SELECT id FROM jobs
             WHERE status = ? OR (status = ? AND (run_after IS NULL OR run_after <= ?))
             ORDER BY priority DESC, created_at ASC, id ASC
             LIMIT ?
         ) AND status IN (?, ?)
         RETURNING `+jobColumns,
		StatusRunning,
		workerID,
		now,
		now,
		now,
		StatusQueued,
		StatusRetry,
		now,
		limit,
		StatusQueued,
		StatusRetry,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Heartbeat renews the lease telemetry for a running job. A no-op for jobs in
// any other state; liveness detection only, never correctness.
func (s *Store) Heartbeat(ctx context.Context, id int64, stage string, progress float64) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET heartbeat_stage = ?, heartbeat_progress = ?, heartbeat_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		nullableString(stage),
		progress,
		now,
		now,
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// Complete transitions a running job to succeeded, recording its output and
// the identifier of the downstream record it produced.
func (s *Store) Complete(ctx context.Context, id int64, outputJSON, producedID string) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, output_json = ?, produced_id = ?, locked_by = NULL, locked_at = NULL,
             last_error = NULL, error_code = NULL, heartbeat_stage = NULL, heartbeat_at = NULL,
             heartbeat_progress = 100, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusSucceeded,
		nullableString(outputJSON),
		nullableString(producedID),
		now,
		id,
		StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %d is not running", id)
	}
	return nil
}

// Fail records a failure for a running job. Permanent failures, and failures
// that exhaust max_attempts, transition to failed (dead-letter eligible).
// Anything else increments attempts and parks the job in retry with an
// exponential run_after delay.
func (s *Store) Fail(ctx context.Context, id int64, message, code string, permanent bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fail tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(
		ctx,
		`SELECT attempts, max_attempts FROM jobs WHERE id = ? AND status = ?`,
		id,
		StatusRunning,
	).Scan(&attempts, &maxAttempts)
	if err != nil {
		return fmt.Errorf("job %d is not running: %w", id, err)
	}

	now := time.Now()
	attempts++
	if permanent || attempts >= maxAttempts {
		_, err = tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = ?, locked_by = NULL, locked_at = NULL, run_after = NULL,
                 last_error = ?, error_code = ?, heartbeat_stage = NULL, heartbeat_at = NULL,
                 updated_at = ?
             WHERE id = ?`,
			StatusFailed,
			attempts,
			nullableString(message),
			nullableString(code),
			formatTime(now),
			id,
		)
	} else {
		runAfter := now.Add(RetryBackoff(s.retryBase(), attempts))
		_, err = tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = ?, locked_by = NULL, locked_at = NULL, run_after = ?,
                 last_error = ?, error_code = ?, heartbeat_stage = NULL, heartbeat_at = NULL,
                 updated_at = ?
             WHERE id = ?`,
			StatusRetry,
			attempts,
			formatTime(runAfter),
			nullableString(message),
			nullableString(code),
			formatTime(now),
			id,
		)
	}
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failure: %w", err)
	}
	return nil
}

// Requeue returns a running job to queued without counting an attempt. Used
// on graceful shutdown so interrupted work is retried promptly instead of
// waiting out the stale-lease timeout.
func (s *Store) Requeue(ctx context.Context, id int64, workerID, reason string) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, locked_by = NULL, locked_at = NULL, run_after = NULL,
             last_error = ?, error_code = ?, heartbeat_stage = NULL, heartbeat_at = NULL,
             updated_at = ?
         WHERE id = ? AND status = ? AND locked_by = ?`,
		StatusQueued,
		nullableString(reason),
		errCodeShutdown,
		now,
		id,
		StatusRunning,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %d is not running under worker %s", id, workerID)
	}
	return nil
}

// Cancel transitions a claimable job to cancelled. Running and terminal jobs
// cannot be cancelled; the return value reports whether a transition happened.
func (s *Store) Cancel(ctx context.Context, id int64) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, run_after = NULL, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled,
		now,
		id,
		StatusQueued,
		StatusRetry,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// SetRetryBackoffBase overrides the base delay used for retry scheduling.
// Zero restores the default.
func (s *Store) SetRetryBackoffBase(base time.Duration) {
	s.backoffBase = base
}

func (s *Store) retryBase() time.Duration {
	if s.backoffBase > 0 {
		return s.backoffBase
	}
	return 30 * time.Second
}

// RetryBackoff computes the delay before attempt n (1-based) may run again:
// base * 2^(n-1), capped at maxRetryBackoff.
func RetryBackoff(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryBackoff {
			return maxRetryBackoff
		}
	}
	if delay > maxRetryBackoff {
		return maxRetryBackoff
	}
	return delay
}
