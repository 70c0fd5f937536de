package pipeline

import (
	"errors"
	"sync"

	"sift/internal/media"
)

// Context carries the shared state for one pipeline run. The executor and the
// stage handlers own it from the main goroutine; Progress and the note/record
// accessors are safe to call concurrently so heartbeat reporters can read
// telemetry while a stage executes.
type Context struct {
	JobID     int64
	RequestID string
	Source    media.Source
	WorkDir   string

	// MediaFile is the local path of the fetched media, set by the fetch
	// stage and consumed by everything downstream.
	MediaFile string

	// ArtifactID is the identifier of the enrichment record this run
	// produced or matched.
	ArtifactID string

	mu        sync.Mutex
	notes     map[string]string
	completed []string
	skipped   []string
	failed    []string
	cleanups  []func() error
	closed    bool
	stage     string
	progress  float64
}

// NewContext builds a run context for a claimed job.
func NewContext(jobID int64, requestID string, source media.Source, workDir string) *Context {
	return &Context{
		JobID:     jobID,
		RequestID: requestID,
		Source:    source,
		WorkDir:   workDir,
		notes:     make(map[string]string),
	}
}

// SetNote records a free-form key/value observation for the run summary.
func (c *Context) SetNote(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notes == nil {
		c.notes = make(map[string]string)
	}
	c.notes[key] = value
}

// Note fetches a previously recorded observation.
func (c *Context) Note(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.notes[key]
	return value, ok
}

// Notes returns a copy of all recorded observations.
func (c *Context) Notes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.notes))
	for k, v := range c.notes {
		out[k] = v
	}
	return out
}

func (c *Context) recordCompleted(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, stage)
}

func (c *Context) recordSkipped(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped = append(c.skipped, stage)
}

func (c *Context) recordFailed(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, stage)
}

// Completed lists stages that ran to success, in order.
func (c *Context) Completed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.completed...)
}

// Skipped lists stages that elected not to run.
func (c *Context) Skipped() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.skipped...)
}

// Failed lists optional stages that failed without aborting the run.
func (c *Context) Failed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.failed...)
}

// RegisterCleanup schedules fn to run when the context closes. Cleanups run
// in reverse registration order.
func (c *Context) RegisterCleanup(fn func() error) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// Close releases registered resources exactly once, newest first. Subsequent
// calls are no-ops.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cleanups := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetProgress records the currently executing stage and a completion
// percentage for heartbeat telemetry.
func (c *Context) SetProgress(stage string, percent float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stage = stage
	c.progress = percent
}

// Progress returns the current stage name and completion percentage.
func (c *Context) Progress() (string, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage, c.progress
}
