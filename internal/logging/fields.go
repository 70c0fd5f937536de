package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldWorkerID is the standardized structured logging key for worker identity.
	FieldWorkerID = "worker_id"
	// FieldRequestID is the standardized structured logging key for per-attempt correlation identifiers.
	FieldRequestID = "request_id"
	// FieldErrorCode is the standardized structured logging key for taxonomy error codes.
	FieldErrorCode = "error_code"
	// FieldEventType tags log records for downstream filtering.
	FieldEventType = "event_type"
	// FieldAttempt is the standardized structured logging key for job attempt counts.
	FieldAttempt = "attempt"
)
