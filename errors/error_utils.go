package errors

import (
	"context"
	"errors"
)

// IsRetryableError determines if an error is transient and the operation may be retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_SERVICE_UNAVAILABLE,
			ERR_STORAGE_UNAVAILABLE:
			return true
		}
	}

	return false
}

// IsConsistencyError reports whether err signals that the stored plugin data and
// the data being written disagree. These errors must never be swallowed.
func IsConsistencyError(err error) bool {
	if err == nil {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		return tErr.Code() == ERR_PLUGIN_DATA_CONFLICT
	}

	return false
}

// IsPluginFault reports whether err was produced by a misbehaving plugin rather
// than by the index itself.
func IsPluginFault(err error) bool {
	if err == nil {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_PLUGIN_INVOCATION, ERR_PLUGIN_RESULT:
			return true
		}
	}

	return false
}
