package stages

import (
	"context"

	"sift/internal/pipeline"
	"sift/internal/queue"
	"sift/internal/services"
)

// ArtifactStore is the slice of the job store the stages need.
type ArtifactStore interface {
	UpsertArtifact(ctx context.Context, sourceKey, payloadJSON string) (string, error)
	ArtifactBySourceKey(ctx context.Context, sourceKey string) (*queue.Artifact, error)
}

// Dedupe ends the run early when the source has already been enriched,
// pointing the job at the existing artifact.
type Dedupe struct {
	pipeline.BaseHandler
	store ArtifactStore
}

// NewDedupe builds the dedupe stage.
func NewDedupe(store ArtifactStore) *Dedupe {
	return &Dedupe{store: store}
}

func (d *Dedupe) ValidateInputs(_ context.Context, pc *pipeline.Context) error {
	if err := pc.Source.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "dedupe", "validate source", "", err)
	}
	return nil
}

func (d *Dedupe) Execute(ctx context.Context, pc *pipeline.Context) error {
	artifact, err := d.store.ArtifactBySourceKey(ctx, pc.Source.Key())
	if err != nil {
		return services.Wrap(services.ErrTransient, "dedupe", "lookup artifact", "", err)
	}
	if artifact != nil {
		pc.ArtifactID = artifact.ID
		return services.Wrap(services.ErrAlreadyExists, "dedupe", "lookup artifact", "source already enriched", nil)
	}
	return nil
}
