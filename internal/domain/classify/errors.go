package classify

import "errors"

var (
	// ErrUnavailable indicates a transient classifier outage; retryable.
	ErrUnavailable = errors.New("classifier unavailable")
	// ErrTimeout indicates the classifier did not answer in time; retryable with backoff.
	ErrTimeout = errors.New("classifier timeout")
	// ErrUnsupported indicates the payload format was rejected; terminal, never retried.
	ErrUnsupported = errors.New("unsupported payload format")
)

// Transient reports whether err is worth retrying.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
