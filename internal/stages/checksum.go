package stages

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"sift/internal/pipeline"
	"sift/internal/services"
)

// Note keys the checksum stage records on the run context.
const (
	NoteChecksum = "checksum_sha256"
	NoteSize     = "size_bytes"
)

// Checksum records the SHA-256 digest and byte size of the fetched media.
// Optional: a failure here degrades the run instead of aborting it.
type Checksum struct {
	pipeline.BaseHandler
}

// NewChecksum builds the checksum stage.
func NewChecksum() *Checksum {
	return &Checksum{}
}

func (c *Checksum) ShouldRun(_ context.Context, pc *pipeline.Context) (bool, error) {
	return pc.MediaFile != "", nil
}

func (c *Checksum) ValidateInputs(_ context.Context, pc *pipeline.Context) error {
	if pc.MediaFile == "" {
		return services.Wrap(services.ErrValidation, "checksum", "validate", "no media file fetched", nil)
	}
	return nil
}

func (c *Checksum) Execute(_ context.Context, pc *pipeline.Context) error {
	file, err := os.Open(pc.MediaFile)
	if err != nil {
		return services.Wrap(services.ErrTransient, "checksum", "open media", "", err)
	}
	defer file.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return services.Wrap(services.ErrTransient, "checksum", "hash media", "", err)
	}

	pc.SetNote(NoteChecksum, hex.EncodeToString(hasher.Sum(nil)))
	pc.SetNote(NoteSize, fmt.Sprintf("%d", size))
	return nil
}
