package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the chain.
// If err is nil, Wrap returns nil. If err is already an *Error its code,
// category and context are preserved.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var orchErr *Error
	if errors.As(err, &orchErr) {
		wrapped := &Error{
			code:      orchErr.code,
			category:  orchErr.category,
			message:   message,
			cause:     err,
			retryable: orchErr.retryable,
			agentID:   orchErr.agentID,
			taskID:    orchErr.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var orchErr *Error
	if errors.As(err, &orchErr) {
		return orchErr.code == code
	}
	return false
}

// Code extracts the error code from an error chain.
// Returns the empty string if err is not an *Error.
func Code(err error) ErrorCode {
	var orchErr *Error
	if errors.As(err, &orchErr) {
		return orchErr.code
	}
	return ""
}

// IsRetryable checks if the error is retryable.
// Non-structured errors default to not retryable.
func IsRetryable(err error) bool {
	var orchErr *Error
	if errors.As(err, &orchErr) {
		return orchErr.Retryable()
	}
	return false
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message)
}
