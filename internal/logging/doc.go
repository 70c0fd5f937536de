// Package logging wraps log/slog with the attribute helpers and standardized
// field keys used across the worker, store, and pipeline. Construction reads
// the [logging] config section and tees output to a file under log_dir when
// one is configured.
package logging
