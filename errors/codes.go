package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: an agent that missed heartbeats, routing exhaustion.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: malformed task submission, unknown agent ID.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates capacity exhaustion.
	// Examples: every capable agent at its concurrency limit.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors or bugs.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific failure types within categories.
type ErrorCode string

const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Component shutting down or not started

	// Permanent errors
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"      // Agent or task does not exist
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"  // Malformed submission or registration
	ErrCodeConflict      ErrorCode = "CONFLICT"       // Operation conflicts with current state
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS" // Duplicate identifier
	ErrCodeCanceled      ErrorCode = "CANCELED"       // Operation was canceled

	// Resource errors
	ErrCodeCapacity ErrorCode = "CAPACITY" // All capable agents at concurrency limit

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic

	// Orchestration errors
	ErrCodeAgentOffline      ErrorCode = "AGENT_OFFLINE"      // Target agent is offline
	ErrCodeAgentBusy         ErrorCode = "AGENT_BUSY"         // Agent at max concurrent tasks
	ErrCodeTaskFailed        ErrorCode = "TASK_FAILED"        // Task execution failed
	ErrCodeCapabilityMissing ErrorCode = "CAPABILITY_MISSING" // No agent declares a required capability
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeAgentOffline, ErrCodeAgentBusy, ErrCodeCapabilityMissing:
		return CategoryTransient
	case ErrCodeNotFound, ErrCodeInvalidInput, ErrCodeConflict, ErrCodeAlreadyExists, ErrCodeCanceled, ErrCodeTaskFailed:
		return CategoryPermanent
	case ErrCodeCapacity:
		return CategoryResource
	case ErrCodeInternal, ErrCodePanic:
		return CategoryInternal
	default:
		return CategoryInternal
	}
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:           "operation timed out",
	ErrCodeUnavailable:       "component unavailable",
	ErrCodeNotFound:          "resource not found",
	ErrCodeInvalidInput:      "invalid input provided",
	ErrCodeConflict:          "conflicting operation",
	ErrCodeAlreadyExists:     "resource already exists",
	ErrCodeCanceled:          "operation canceled",
	ErrCodeCapacity:          "no agent capacity available",
	ErrCodeInternal:          "internal error",
	ErrCodePanic:             "recovered from panic",
	ErrCodeAgentOffline:      "agent is offline",
	ErrCodeAgentBusy:         "agent is busy",
	ErrCodeTaskFailed:        "task execution failed",
	ErrCodeCapabilityMissing: "required capability missing",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
