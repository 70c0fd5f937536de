// Package services defines the error taxonomy shared by pipeline stages and
// the worker loop.
//
// Stages tag failures with one of the exported sentinel markers via Wrap; the
// executor and worker classify errors with errors.Is and never inspect
// message text. Unrecognized errors classify as retryable so unexpected
// failures are never silently dropped, but they carry the distinct "unknown"
// code so the ambiguity stays visible to operators.
package services
