// Package errors provides structured error handling for the assistant.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeAuthExpired indicates the user must reconnect their planner account.
	CodeAuthExpired Code = "AUTH_EXPIRED"
	// CodeTransient indicates a retryable failure (network, 5xx, timeout).
	CodeTransient Code = "TRANSIENT"
	// CodeRateLimited indicates the remote service asked us to slow down.
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeConflict indicates a stale concurrency token on update or delete.
	CodeConflict Code = "CONFLICT"
	// CodeNotFound indicates the referenced remote object does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodePermissionDenied indicates the remote service refused the operation.
	CodePermissionDenied Code = "PERMISSION_DENIED"
	// CodeAmbiguousReference indicates a reference matched multiple objects
	// and a clarification turn is required.
	CodeAmbiguousReference Code = "AMBIGUOUS_REFERENCE"
	// CodeValidation indicates malformed user input, such as an unparseable date.
	CodeValidation Code = "VALIDATION"
)

// Retryable reports whether errors with this code may be retried
// automatically without user involvement.
func (c Code) Retryable() bool {
	switch c {
	case CodeTransient, CodeRateLimited:
		return true
	default:
		return false
	}
}
