package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	// StatusQueued jobs are eligible for claiming.
	StatusQueued Status = "queued"
	// StatusRetry jobs failed transiently and become claimable once
	// run_after passes.
	StatusRetry Status = "retry"
	// StatusRunning jobs are leased to exactly one worker.
	StatusRunning Status = "running"
	// StatusSucceeded is terminal.
	StatusSucceeded Status = "succeeded"
	// StatusFailed is terminal; failed jobs form the dead-letter set.
	StatusFailed Status = "failed"
	// StatusCancelled is terminal; only reachable from the claimable states.
	StatusCancelled Status = "cancelled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRetry,
	StatusRunning,
	StatusSucceeded,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Claimable reports whether jobs in this status may be handed to a worker.
func (s Status) Claimable() bool {
	return s == StatusQueued || s == StatusRetry
}

// Job represents one durable unit of work persisted in SQLite.
type Job struct {
	ID                int64
	IdempotencyKey    string
	Status            Status
	Priority          int
	InputJSON         string
	OutputJSON        string
	ProducedID        string
	Attempts          int
	MaxAttempts       int
	LockedBy          string
	LockedAt          *time.Time
	RunAfter          *time.Time
	LastError         string
	ErrorCode         string
	HeartbeatStage    string
	HeartbeatProgress float64
	HeartbeatAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HeartbeatAge returns how long ago the lease was last renewed, or zero when
// the job has never heartbeated.
func (j *Job) HeartbeatAge(now time.Time) time.Duration {
	if j == nil || j.HeartbeatAt == nil {
		return 0
	}
	age := now.Sub(*j.HeartbeatAt)
	if age < 0 {
		return 0
	}
	return age
}

// EnqueueResult reports the outcome of an Enqueue call.
type EnqueueResult struct {
	JobID          int64
	Status         Status
	AlreadyExisted bool
}

// RunningJob is the monitor view of one in-flight job.
type RunningJob struct {
	JobID        int64
	WorkerID     string
	Stage        string
	Progress     float64
	HeartbeatAge time.Duration
	LockedFor    time.Duration
}

// Page selects one slice of a listing.
type Page struct {
	Number int
	Size   int
}

func (p Page) limitOffset() (int, int) {
	size := p.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	number := p.Number
	if number < 1 {
		number = 1
	}
	return size, (number - 1) * size
}

// DefaultPageSize bounds admin listings when the caller does not choose one.
const DefaultPageSize = 50

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Claimable int
	Running   int
	Succeeded int
	Failed    int
	Cancelled int
}
