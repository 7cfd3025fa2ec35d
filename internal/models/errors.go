package models

import "errors"

// Error kinds carried into the session record when a pipeline run fails.
const (
	KindRetrieval  = "RetrievalError"
	KindDecode     = "DecodeError"
	KindVision     = "VisionServiceError"
	KindTimeout    = "Timeout"
	KindValidation = "ValidationError"
	// KindInternal covers infrastructure failures that are nobody's input's
	// fault, like a session store that stops responding mid-run.
	KindInternal = "InternalError"
)

// PipelineError wraps a stage failure with its taxonomy kind. Retryable marks
// errors a component may retry locally; once an error escapes a component the
// flag is informational only.
type PipelineError struct {
	Kind      string
	Message   string
	Retryable bool
	Err       error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return e.Kind + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind + ": " + e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// KindOf extracts the taxonomy kind from err. Unclassified errors report as
// InternalError rather than blaming the caller's input.
func KindOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err may be retried by its owning component.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
