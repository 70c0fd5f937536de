package stages

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"sift/internal/config"
	"sift/internal/media"
	"sift/internal/pipeline"
	"sift/internal/services"
)

// Fetch materializes the job's source as a local file in the run's scratch
// directory. URL sources are downloaded subject to the configured size limit;
// file sources are copied so downstream stages never touch the original.
type Fetch struct {
	pipeline.BaseHandler
	client   *http.Client
	maxBytes int64
}

// NewFetch builds the fetch stage from the fetch configuration section.
func NewFetch(cfg config.Fetch) *Fetch {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Fetch{
		client:   &http.Client{Timeout: timeout},
		maxBytes: cfg.MaxBytes,
	}
}

func (f *Fetch) ValidateInputs(_ context.Context, pc *pipeline.Context) error {
	if pc.WorkDir == "" {
		return services.Wrap(services.ErrConfiguration, "fetch", "validate", "work directory not set", nil)
	}
	if err := pc.Source.Validate(); err != nil {
		return services.Wrap(services.ErrValidation, "fetch", "validate source", "", err)
	}
	return nil
}

func (f *Fetch) Execute(ctx context.Context, pc *pipeline.Context) error {
	if err := os.MkdirAll(pc.WorkDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "create work dir", "", err)
	}
	workDir := pc.WorkDir
	pc.RegisterCleanup(func() error {
		return os.RemoveAll(workDir)
	})

	target := filepath.Join(pc.WorkDir, "media"+filepath.Ext(pc.Source.Location))
	switch pc.Source.Kind {
	case media.KindURL:
		if err := f.download(ctx, pc.Source.Location, target); err != nil {
			return err
		}
	case media.KindFile:
		if err := copyFile(pc.Source.Location, target); err != nil {
			return err
		}
	default:
		return services.Wrap(services.ErrValidation, "fetch", "dispatch", fmt.Sprintf("unsupported source kind %q", pc.Source.Kind), nil)
	}

	pc.MediaFile = target
	return nil
}

func (f *Fetch) download(ctx context.Context, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, "fetch", "build request", "", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "download", "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "fetch", "download", fmt.Sprintf("source returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return services.Wrap(services.ErrPermanent, "fetch", "download", fmt.Sprintf("source returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return services.Wrap(services.ErrTransient, "fetch", "download", fmt.Sprintf("source returned %d", resp.StatusCode), nil)
	}

	out, err := os.Create(target)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "create file", "", err)
	}
	defer out.Close()

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	written, err := io.Copy(out, reader)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "download", "", err)
	}
	if f.maxBytes > 0 && written > f.maxBytes {
		return services.Wrap(services.ErrValidation, "fetch", "download", fmt.Sprintf("source exceeds %d byte limit", f.maxBytes), nil)
	}
	return out.Sync()
}

func copyFile(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return services.Wrap(services.ErrNotFound, "fetch", "stat source", "", err)
		}
		return services.Wrap(services.ErrTransient, "fetch", "stat source", "", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "fetch", "stat source", "source is a directory", nil)
	}

	in, err := os.Open(source)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "open source", "", err)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "create file", "", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return services.Wrap(services.ErrTransient, "fetch", "copy source", "", err)
	}
	return out.Sync()
}
