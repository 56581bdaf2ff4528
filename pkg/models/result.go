package models

// ErrorCategory classifies a task failure for retry decisions.
// Categories describe failure modes, not concrete error types.
type ErrorCategory string

const (
	// ErrorTransient covers network blips and contended resources.
	// Eligible for retry by default.
	ErrorTransient ErrorCategory = "transient"
	// ErrorPermanent covers invalid input and programming errors.
	// Never retried.
	ErrorPermanent ErrorCategory = "permanent"
	// ErrorTimeout indicates the task exceeded its declared timeout.
	// Retried by default, same as transient.
	ErrorTimeout ErrorCategory = "timeout"
	// ErrorCancelled indicates an interrupt or workflow abort.
	// Never retried.
	ErrorCancelled ErrorCategory = "cancelled"
	// ErrorUnknown covers uncategorized failures. Retried by default,
	// conservatively.
	ErrorUnknown ErrorCategory = "unknown"
)

// Valid returns true if the category is a known value.
func (c ErrorCategory) Valid() bool {
	switch c {
	case ErrorTransient, ErrorPermanent, ErrorTimeout, ErrorCancelled, ErrorUnknown:
		return true
	default:
		return false
	}
}

// ErrorRecord describes a task failure.
type ErrorRecord struct {
	// Category classifies the failure for retry decisions.
	Category ErrorCategory `json:"category"`
	// Message is the human-readable failure description.
	Message string `json:"message"`
	// Kind is the originating error type name, when known.
	Kind string `json:"kind,omitempty"`
}

// Error implements the error interface.
func (e *ErrorRecord) Error() string {
	return string(e.Category) + ": " + e.Message
}

// TaskResult is the tagged outcome of one execution attempt:
// either a success value or a failure record, never both.
type TaskResult struct {
	// Value is the success value. Only meaningful when Err is nil.
	Value any `json:"value,omitempty"`
	// Err is the failure record. Nil means success.
	Err *ErrorRecord `json:"error,omitempty"`
}

// Success builds a successful result carrying the given value.
func Success(value any) TaskResult {
	return TaskResult{Value: value}
}

// Failure builds a failed result with the given category and message.
func Failure(category ErrorCategory, message, kind string) TaskResult {
	return TaskResult{Err: &ErrorRecord{Category: category, Message: message, Kind: kind}}
}

// Failed returns true if the result represents a failure.
func (r TaskResult) Failed() bool {
	return r.Err != nil
}
