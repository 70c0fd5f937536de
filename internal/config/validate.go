package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate rejects configurations the worker cannot safely run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Worker.StaleAfter <= c.Worker.HeartbeatInterval {
		problems = append(problems, fmt.Sprintf(
			"worker.stale_after_seconds (%d) must exceed worker.heartbeat_interval_seconds (%d) or live jobs will be reclaimed",
			c.Worker.StaleAfter, c.Worker.HeartbeatInterval))
	}
	if c.Events.Enabled && strings.TrimSpace(c.Events.NATSURL) == "" {
		problems = append(problems, "events.nats_url is required when events.enabled is true")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of console, text, json", c.Logging.Format))
	}
	if c.Fetch.MaxBytes < 0 {
		problems = append(problems, "fetch.max_bytes must not be negative")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
