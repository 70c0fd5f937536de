// Package pipeline executes an ordered sequence of stages against a single
// claimed job. Stages share state through a run-scoped Context; the executor
// handles skip decisions, input validation, in-run retries for transient
// failures, and optional-stage degradation.
package pipeline
