package query

import (
	"context"
	"errors"
	"net"
)

// TransientError marks a failure that may succeed if the operation is attempted again, such as a
// timeout or a temporarily unavailable backend.
type TransientError struct {
	Err error
}

// Transient marks err as retryable. Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func (err *TransientError) Error() string {
	return err.Err.Error()
}

func (err *TransientError) Unwrap() error {
	return err.Err
}

// IsTransient reports whether err should be retried: explicitly marked transient errors, deadline
// expiry and network timeouts. Cancellation by the caller is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
