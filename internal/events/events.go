package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"sift/internal/config"
	"sift/internal/logging"
)

// Event types emitted over the lifecycle of a job.
const (
	TypeClaimed      = "job.claimed"
	TypeSucceeded    = "job.succeeded"
	TypeRetried      = "job.retried"
	TypeDeadLettered = "job.dead_lettered"
	TypeRequeued     = "job.requeued"
)

// Event is the JSON payload published for each lifecycle milestone.
type Event struct {
	Type       string    `json:"type"`
	JobID      int64     `json:"job_id"`
	WorkerID   string    `json:"worker_id,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	ProducedID string    `json:"produced_id,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher emits lifecycle events. Implementations must tolerate broker
// outages; event delivery is best-effort and never blocks job processing.
type Publisher interface {
	Publish(event Event)
	Close()
}

// New returns a NATS-backed publisher, or a no-op one when events are
// disabled in the configuration.
func New(cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.Events.Enabled {
		return NopPublisher{}, nil
	}
	nc, err := nats.Connect(cfg.Events.NATSURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &natsPublisher{
		nc:      nc,
		subject: cfg.Events.Subject,
		logger:  logging.NewComponentLogger(logger, "events"),
	}, nil
}

type natsPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

func (p *natsPublisher) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal event", logging.Error(err))
		return
	}
	if err := p.nc.Publish(p.subject, payload); err != nil {
		p.logger.Warn("publish event",
			logging.String(logging.FieldEventType, event.Type),
			logging.Int64(logging.FieldJobID, event.JobID),
			logging.Error(err),
		)
	}
}

func (p *natsPublisher) Close() {
	_ = p.nc.Drain()
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

func (NopPublisher) Close() {}
