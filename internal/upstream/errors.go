package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is returned when the camera cannot be reached or answers
	// with a non-2xx status. Nothing has been written downstream when a caller
	// observes it.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrTimeout wraps context.DeadlineExceeded for bounded one-shot fetches.
	ErrTimeout = errors.New("upstream timeout")

	// ErrNoFrame is returned when a snapshot body ends, or reaches the size
	// limit, before a complete JPEG frame was seen.
	ErrNoFrame = errors.New("no jpeg frame in upstream response")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// Is makes errors.Is(err, ErrUnavailable) hold for status errors.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnavailable
}
