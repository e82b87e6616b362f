package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Error is a structured error with a code, category, and optional user
// attribution.
type Error struct {
	code      Code
	category  Category
	message   string
	cause     error
	userID    string
	timestamp time.Time
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() Code {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() Category {
	return e.category
}

// Retryable reports whether the operation may succeed on retry.
func (e *Error) Retryable() bool {
	return e.category.IsRetryable()
}

// UserID returns the user the failure is attributed to, if any.
func (e *Error) UserID() string {
	return e.userID
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithUser attributes the error to a user.
func WithUser(userID string) Option {
	return func(e *Error) {
		e.userID = userID
	}
}

// WithCategory overrides the default category for the code.
func WithCategory(cat Category) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// New creates an Error with the given code and message.
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// CodeOf extracts the code from an error chain. Returns CodeInternal when
// no structured error is present.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.code == code
	}
	return false
}

// ConfigInvalid creates a config_invalid error.
func ConfigInvalid(message string, opts ...Option) *Error {
	return New(CodeConfigInvalid, message, opts...)
}

// UnknownUser creates an unknown_user error attributed to userID.
func UnknownUser(userID string, opts ...Option) *Error {
	opts = append([]Option{WithUser(userID)}, opts...)
	return New(CodeUnknownUser, fmt.Sprintf("unknown user %s", userID), opts...)
}

// ExecutionFailed creates an execution_failed error attributed to userID.
func ExecutionFailed(userID, reason string, opts ...Option) *Error {
	opts = append([]Option{WithUser(userID)}, opts...)
	return New(CodeExecutionFailed, fmt.Sprintf("heartbeat execution failed for %s: %s", userID, reason), opts...)
}

// StorageIO creates a storage_io error.
func StorageIO(message string, opts ...Option) *Error {
	return New(CodeStorageIO, message, opts...)
}

// TransportFailed creates a transport_failed error attributed to userID.
func TransportFailed(userID string, cause error) *Error {
	return New(CodeTransportFailed, fmt.Sprintf("delivery to %s failed", userID),
		WithUser(userID), WithCause(cause))
}

// InvalidInput creates an invalid_input error.
func InvalidInput(message string, opts ...Option) *Error {
	return New(CodeInvalidInput, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(CodeInternal, message, opts...)
}
