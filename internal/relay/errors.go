package relay

import (
	"errors"
	"fmt"
)

// ErrIncompleteStream is returned when the upstream closes the connection
// before sending any output and without the end-of-stream sentinel.
var ErrIncompleteStream = errors.New("upstream closed the stream with no output and no sentinel")

// StreamError wraps a transport-level failure that occurred mid-stream,
// before the relay reached a terminating condition.
type StreamError struct {
	Cause error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("upstream stream failed: %v", e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}
