package coordinator

import "time"

// Streaming requests legitimately run far longer than unary calls, so their
// timeout is a fixed multiple of the non-streaming default with a floor.
const (
	StreamTimeoutMultiplier = 4
	MinStreamTimeout        = 120 * time.Second
)

// RequestTimeout sizes the owning timeout for a request by its shape.
// base is the configured non-streaming timeout.
func RequestTimeout(base time.Duration, streaming bool) time.Duration {
	if !streaming {
		return base
	}
	t := base * StreamTimeoutMultiplier
	if t < MinStreamTimeout {
		t = MinStreamTimeout
	}
	return t
}
