package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Artifact is the persisted enrichment record produced by a completed
// pipeline run, keyed by the source identity so re-runs are idempotent.
type Artifact struct {
	ID          string
	SourceKey   string
	PayloadJSON string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertArtifact stores the enrichment record for a source, returning the
// artifact id. Re-running a pipeline updates the payload in place and keeps
// the original id, so a produced id is stable across retries.
func (s *Store) UpsertArtifact(ctx context.Context, sourceKey, payloadJSON string) (string, error) {
	if sourceKey == "" {
		return "", errors.New("source key is required")
	}
	now := formatTime(time.Now())
	id := uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO artifacts (id, source_key, payload_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(source_key) DO UPDATE SET payload_json = excluded.payload_json, updated_at = excluded.updated_at`,
		id,
		sourceKey,
		payloadJSON,
		now,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("upsert artifact: %w", err)
	}

	stored, err := s.ArtifactBySourceKey(ctx, sourceKey)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", fmt.Errorf("artifact for key %q vanished after upsert", sourceKey)
	}
	return stored.ID, nil
}

// ArtifactBySourceKey fetches the enrichment record for a source identity.
// Returns nil when the source has never been enriched.
func (s *Store) ArtifactBySourceKey(ctx context.Context, sourceKey string) (*Artifact, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, source_key, payload_json, created_at, updated_at FROM artifacts WHERE source_key = ?`,
		sourceKey,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifact by source key: %w", err)
	}
	return artifact, nil
}

// ArtifactByID fetches an enrichment record by identifier.
func (s *Store) ArtifactByID(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, source_key, payload_json, created_at, updated_at FROM artifacts WHERE id = ?`,
		id,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifact by id: %w", err)
	}
	return artifact, nil
}

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*Artifact, error) {
	var (
		id         string
		sourceKey  string
		payload    string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &sourceKey, &payload, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	artifact := &Artifact{
		ID:          id,
		SourceKey:   sourceKey,
		PayloadJSON: payload,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		artifact.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		artifact.UpdatedAt = updated
	}
	return artifact, nil
}
