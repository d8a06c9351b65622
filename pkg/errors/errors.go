package errors

import "errors"

// Sentinels for pipeline errors.
var (
	// ErrParse marks a malformed input record. Recorded and skipped.
	ErrParse = errors.New("parse error")
	// ErrMapping marks a record referencing an unknown dial plan or route
	// choice. Recorded, the run continues.
	ErrMapping = errors.New("mapping error")
	// ErrTransient marks a rate limited or server-failed remote call.
	// Retried with backoff, recorded as a failure once retries are spent.
	ErrTransient = errors.New("transient remote error")
	// ErrRemoteFatal marks an authentication failure or malformed request.
	// Aborts the remaining calls for the current dial plan only.
	ErrRemoteFatal = errors.New("fatal remote error")
	// ErrConfig marks a missing or invalid configuration. Aborts the run
	// before any remote call.
	ErrConfig = errors.New("config error")
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap adds context to an error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}
