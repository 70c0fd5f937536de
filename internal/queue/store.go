package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"sift/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db          *sql.DB
	path        string
	backoffBase time.Duration
}

// Open initializes or connects to the job database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "jobs.db"))
}

// OpenPath connects to the job database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts a new queued job, or returns the existing job when the
// idempotency key was seen before. Safe to call repeatedly for the same
// logical unit of work.
func (s *Store) Enqueue(ctx context.Context, inputJSON, idempotencyKey string, priority, maxAttempts int) (EnqueueResult, error) {
	if idempotencyKey == "" {
		return EnqueueResult{}, errors.New("idempotency key is required")
	}
	if maxAttempts <= 0 {
		return EnqueueResult{}, fmt.Errorf("max attempts must be positive, got %d", maxAttempts)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (idempotency_key, status, priority, input_json, max_attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(idempotency_key) DO NOTHING`,
		idempotencyKey,
		StatusQueued,
		priority,
		inputJSON,
		maxAttempts,
		timestamp,
		timestamp,
	)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("insert job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("rows affected: %w", err)
	}

	existing, err := s.GetByKey(ctx, idempotencyKey)
	if err != nil {
		return EnqueueResult{}, err
	}
	if existing == nil {
		return EnqueueResult{}, fmt.Errorf("job with key %q vanished after enqueue", idempotencyKey)
	}
	return EnqueueResult{
		JobID:          existing.ID,
		Status:         existing.Status,
		AlreadyExisted: affected == 0,
	}, nil
}

// GetByID fetches a job by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetByKey fetches a job by idempotency key. Returns nil when absent.
func (s *Store) GetByKey(ctx context.Context, key string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = ?`, key)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job by key: %w", err)
	}
	return job, nil
}

const jobColumns = "id, idempotency_key, status, priority, input_json, output_json, produced_id, attempts, max_attempts, locked_by, locked_at, run_after, last_error, error_code, heartbeat_stage, heartbeat_progress, heartbeat_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             int64
		idempotencyKey string
		statusStr      string
		priority       int
		inputJSON      string
		outputJSON     sql.NullString
		producedID     sql.NullString
		attempts       int
		maxAttempts    int
		lockedBy       sql.NullString
		lockedAtRaw    sql.NullString
		runAfterRaw    sql.NullString
		lastError      sql.NullString
		errorCode      sql.NullString
		hbStage        sql.NullString
		hbProgress     sql.NullFloat64
		hbAtRaw        sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&id,
		&idempotencyKey,
		&statusStr,
		&priority,
		&inputJSON,
		&outputJSON,
		&producedID,
		&attempts,
		&maxAttempts,
		&lockedBy,
		&lockedAtRaw,
		&runAfterRaw,
		&lastError,
		&errorCode,
		&hbStage,
		&hbProgress,
		&hbAtRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                id,
		IdempotencyKey:    idempotencyKey,
		Status:            Status(statusStr),
		Priority:          priority,
		InputJSON:         inputJSON,
		OutputJSON:        outputJSON.String,
		ProducedID:        producedID.String,
		Attempts:          attempts,
		MaxAttempts:       maxAttempts,
		LockedBy:          lockedBy.String,
		LastError:         lastError.String,
		ErrorCode:         errorCode.String,
		HeartbeatStage:    hbStage.String,
		HeartbeatProgress: hbProgress.Float64,
	}
	job.LockedAt = parseNullableTime(lockedAtRaw)
	job.RunAfter = parseNullableTime(runAfterRaw)
	job.HeartbeatAt = parseNullableTime(hbAtRaw)
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
