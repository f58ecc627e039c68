package engine

import "errors"

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrSessionLoaderRequired indicates a missing session loader.
	ErrSessionLoaderRequired = errors.New("session loader is required")
)

// IsNonRetryable returns true when the error (or any error in its chain)
// signals that the operation must not be retried, such as a corrupted event
// stream.
func IsNonRetryable(err error) bool {
	var target interface{ NonRetryable() bool }
	if errors.As(err, &target) {
		return target.NonRetryable()
	}
	return false
}
