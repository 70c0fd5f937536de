package queue

import (
	"context"
	"fmt"
	"time"
)

// ReleaseStaleJobs reclaims running jobs whose heartbeat is older than
// staleThreshold: attempts is incremented and the job returns to queued.
// Jobs that would exceed max_attempts dead-letter instead of looping through
// reclamation forever. Returns the number of jobs released (either way).
func (s *Store) ReleaseStaleJobs(ctx context.Context, staleThreshold time.Duration) (int64, error) {
	if staleThreshold <= 0 {
		return 0, fmt.Errorf("stale threshold must be positive, got %s", staleThreshold)
	}
	now := time.Now()
	cutoff := formatTime(now.Add(-staleThreshold))
	timestamp := formatTime(now)

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, attempts = attempts + 1, locked_by = NULL, locked_at = NULL,
             last_error = 'lease expired without heartbeat', error_code = ?,
             heartbeat_stage = NULL, heartbeat_at = NULL, updated_at = ?
         WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?
           AND attempts + 1 >= max_attempts`,
		StatusFailed,
		errCodeStale,
		timestamp,
		StatusRunning,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("dead-letter stale jobs: %w", err)
	}
	deadLettered, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	res, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, attempts = attempts + 1, locked_by = NULL, locked_at = NULL,
             last_error = 'lease expired without heartbeat', error_code = ?,
             heartbeat_stage = NULL, heartbeat_at = NULL, updated_at = ?
         WHERE status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?`,
		StatusQueued,
		errCodeStale,
		timestamp,
		StatusRunning,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}
	released, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deadLettered + released, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued, StatusRetry:
			health.Claimable += count
		case StatusRunning:
			health.Running += count
		case StatusSucceeded:
			health.Succeeded += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		}
	}
	return health, nil
}

// ListJobs returns one page of jobs, newest first, optionally filtered by
// status. The second return value is the total count for the filter.
func (s *Store) ListJobs(ctx context.Context, status Status, page Page) ([]*Job, int, error) {
	limit, offset := page.limitOffset()

	var (
		total int
		err   error
	)
	if status == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`).Scan(&total)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE status = ?`, status).Scan(&total)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, 3)
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

// DeadLetterJobs returns failed jobs, most recently failed first. These are
// the jobs that need manual remediation.
func (s *Store) DeadLetterJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY updated_at DESC`,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("dead letter jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RunningJobsMonitor reports stage, progress, and heartbeat age for every
// in-flight job.
func (s *Store) RunningJobsMonitor(ctx context.Context) ([]RunningJob, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY locked_at ASC`,
		StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("running jobs: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var monitor []RunningJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		entry := RunningJob{
			JobID:        job.ID,
			WorkerID:     job.LockedBy,
			Stage:        job.HeartbeatStage,
			Progress:     job.HeartbeatProgress,
			HeartbeatAge: job.HeartbeatAge(now),
		}
		if job.LockedAt != nil {
			entry.LockedFor = now.Sub(*job.LockedAt)
		}
		monitor = append(monitor, entry)
	}
	return monitor, rows.Err()
}

// RetryDeadLetter moves failed jobs back to queued with a fresh attempt
// budget. With no ids, every dead-letter job is retried.
func (s *Store) RetryDeadLetter(ctx context.Context, ids ...int64) (int64, error) {
	now := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, attempts = 0, run_after = NULL, last_error = NULL,
                 error_code = NULL, updated_at = ?
             WHERE status = ?`,
			StatusQueued,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry dead letter: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	query := `UPDATE jobs
        SET status = ?, attempts = 0, run_after = NULL, last_error = NULL,
            error_code = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = ?`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected dead letter jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal removes succeeded and cancelled jobs from the queue.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?)`,
		StatusSucceeded,
		StatusCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}
