// Package media models the typed job payload. Sources form a small tagged
// union keyed by kind; serialization happens only at the store boundary so
// the pipeline always works with the typed variant.
package media
