package errors

// Code identifies the specific failure type.
type Code string

const (
	// CodeConfigInvalid marks malformed or missing persisted configuration.
	// Recovered locally by falling back to defaults.
	CodeConfigInvalid Code = "config_invalid"

	// CodeUnknownUser marks an operation referencing a user absent from
	// the registry or the enabled-state map. Logged and treated as a no-op.
	CodeUnknownUser Code = "unknown_user"

	// CodeExecutionFailed marks a single heartbeat execution failure.
	// Contained at the tick boundary.
	CodeExecutionFailed Code = "execution_failed"

	// CodeStorageIO marks a read or write failure against a user's
	// durable store.
	CodeStorageIO Code = "storage_io"

	// CodeTransportFailed marks a failed outbound delivery. Logged by the
	// caller, never retried by this subsystem.
	CodeTransportFailed Code = "transport_failed"

	// CodeInvalidInput marks a caller error (bad interval, empty id).
	CodeInvalidInput Code = "invalid_input"

	// CodeInternal marks an unexpected internal failure.
	CodeInternal Code = "internal"
)

// Category groups codes by how callers should handle them.
type Category string

const (
	// CategoryRecoverable failures are repaired locally with defaults.
	CategoryRecoverable Category = "recoverable"

	// CategoryLenient failures are logged and ignored.
	CategoryLenient Category = "lenient"

	// CategoryTransient failures may succeed next cycle; contained where
	// they occur.
	CategoryTransient Category = "transient"

	// CategoryPermanent failures propagate to the caller.
	CategoryPermanent Category = "permanent"
)

// DefaultCategory returns the default category for a code.
func (c Code) DefaultCategory() Category {
	switch c {
	case CodeConfigInvalid:
		return CategoryRecoverable
	case CodeUnknownUser:
		return CategoryLenient
	case CodeExecutionFailed, CodeTransportFailed:
		return CategoryTransient
	default:
		return CategoryPermanent
	}
}

// IsRetryable reports whether failures of this category may succeed on a
// later attempt.
func (c Category) IsRetryable() bool {
	return c == CategoryTransient
}
