package stages

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"sift/internal/media"
	"sift/internal/pipeline"
	"sift/internal/services"
)

// artifactPayload is the enrichment record persisted by the index stage.
type artifactPayload struct {
	Source    media.Source      `json:"source"`
	Checksum  string            `json:"checksum_sha256,omitempty"`
	SizeBytes string            `json:"size_bytes,omitempty"`
	Notes     map[string]string `json:"notes,omitempty"`
	IndexedAt time.Time         `json:"indexed_at"`
}

// Index writes the enrichment record: an artifact row keyed by the source
// identity, plus a JSON snapshot in the artifact directory. Sets the run's
// produced id.
type Index struct {
	pipeline.BaseHandler
	store       ArtifactStore
	artifactDir string
}

// NewIndex builds the index stage. artifactDir may be empty to skip the
// on-disk snapshot.
func NewIndex(store ArtifactStore, artifactDir string) *Index {
	return &Index{store: store, artifactDir: artifactDir}
}

func (i *Index) ValidateInputs(_ context.Context, pc *pipeline.Context) error {
	if pc.Source.Key() == "" {
		return services.Wrap(services.ErrValidation, "index", "validate", "source key is empty", nil)
	}
	return nil
}

func (i *Index) Execute(ctx context.Context, pc *pipeline.Context) error {
	payload := artifactPayload{
		Source:    pc.Source,
		Notes:     pc.Notes(),
		IndexedAt: time.Now().UTC(),
	}
	if checksum, ok := pc.Note(NoteChecksum); ok {
		payload.Checksum = checksum
	}
	if size, ok := pc.Note(NoteSize); ok {
		payload.SizeBytes = size
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "index", "encode payload", "", err)
	}

	artifactID, err := i.store.UpsertArtifact(ctx, pc.Source.Key(), string(encoded))
	if err != nil {
		return services.Wrap(services.ErrTransient, "index", "upsert artifact", "", err)
	}
	pc.ArtifactID = artifactID

	if i.artifactDir != "" {
		if err := os.MkdirAll(i.artifactDir, 0o755); err != nil {
			return services.Wrap(services.ErrTransient, "index", "create artifact dir", "", err)
		}
		snapshot := filepath.Join(i.artifactDir, artifactID+".json")
		if err := os.WriteFile(snapshot, encoded, 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "index", "write snapshot", "", err)
		}
	}
	return nil
}
