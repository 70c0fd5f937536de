// Package events publishes job lifecycle milestones to NATS as JSON. When
// events are disabled in configuration a no-op publisher is used, so callers
// never branch on whether eventing is on.
package events
