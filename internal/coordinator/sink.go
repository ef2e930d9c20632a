package coordinator

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ResponseSink abstracts the outgoing client response. Every implementation
// must expose the introspection flags; the coordinator is the only writer
// allowed to act on them.
type ResponseSink interface {
	// WriteHeader sends the status line and headers. Later calls are no-ops.
	WriteHeader(status int, headers map[string]string)

	// WriteChunk writes and flushes one chunk of the response body.
	WriteChunk(p []byte) error

	// End marks the response complete. Idempotent.
	End()

	// Finalize performs a full terminal write: status, headers and body in
	// one atomic step. Reports false without writing anything when headers
	// already went out or the response ended; concurrent streaming writes
	// can never interleave with it.
	Finalize(status int, headers map[string]string, body []byte) (bool, error)

	// EndStream atomically writes the stream terminator and ends the
	// response. Reports false without writing when the response already
	// ended.
	EndStream(terminator []byte) (bool, error)

	// HeadersSent reports whether WriteHeader ran.
	HeadersSent() bool

	// Ended reports whether End ran.
	Ended() bool

	// ForceClose destroys the underlying connection. Used for half-sent
	// streams that would otherwise hang the client indefinitely.
	ForceClose()
}

// HTTPSink adapts an http.ResponseWriter to the ResponseSink interface.
// Safe for use from the handler goroutine and the timeout timer goroutine.
type HTTPSink struct {
	mu          sync.Mutex
	w           http.ResponseWriter
	flusher     http.Flusher
	headersSent bool
	ended       bool
	closed      bool
}

// NewHTTPSink wraps a response writer.
func NewHTTPSink(w http.ResponseWriter) *HTTPSink {
	flusher, _ := w.(http.Flusher)
	return &HTTPSink{w: w, flusher: flusher}
}

func (s *HTTPSink) WriteHeader(status int, headers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.headersSent || s.ended || s.closed {
		return
	}
	for k, v := range headers {
		s.w.Header().Set(k, v)
	}
	s.w.WriteHeader(status)
	s.headersSent = true
}

func (s *HTTPSink) WriteChunk(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.closed {
		return fmt.Errorf("response already ended")
	}
	if _, err := s.w.Write(p); err != nil {
		return fmt.Errorf("response write failed: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *HTTPSink) Finalize(status int, headers map[string]string, body []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.headersSent || s.ended || s.closed {
		return false, nil
	}
	for k, v := range headers {
		s.w.Header().Set(k, v)
	}
	s.w.WriteHeader(status)
	s.headersSent = true
	if _, err := s.w.Write(body); err != nil {
		return false, fmt.Errorf("response write failed: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	s.ended = true
	return true, nil
}

func (s *HTTPSink) EndStream(terminator []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended || s.closed {
		return false, nil
	}
	if _, err := s.w.Write(terminator); err != nil {
		return false, fmt.Errorf("response write failed: %w", err)
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	s.ended = true
	return true, nil
}

func (s *HTTPSink) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

func (s *HTTPSink) HeadersSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headersSent
}

func (s *HTTPSink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// ForceClose hijacks the connection and closes it. Falls back to an
// immediate write deadline on transports that cannot be hijacked.
func (s *HTTPSink) ForceClose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.ended = true

	if hj, ok := s.w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			_ = conn.Close()
			return
		}
	}
	_ = http.NewResponseController(s.w).SetWriteDeadline(time.Now())
}
