package coordinator

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"streamgate/internal/types"
)

var errResponseEnded = errors.New("response already ended")

// mockSink records everything the coordinator does to the response.
type mockSink struct {
	mu          sync.Mutex
	status      int
	headers     map[string]string
	body        bytes.Buffer
	headersSent bool
	ended       bool
	forceClosed bool
	writeErr    error
}

func (m *mockSink) WriteHeader(status int, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headersSent || m.ended {
		return
	}
	m.status = status
	m.headers = headers
	m.headersSent = true
}

func (m *mockSink) WriteChunk(p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return errResponseEnded
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.body.Write(p)
	return nil
}

func (m *mockSink) Finalize(status int, headers map[string]string, body []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headersSent || m.ended {
		return false, nil
	}
	if m.writeErr != nil {
		return false, m.writeErr
	}
	m.status = status
	m.headers = headers
	m.headersSent = true
	m.body.Write(body)
	m.ended = true
	return true, nil
}

func (m *mockSink) EndStream(terminator []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return false, nil
	}
	if m.writeErr != nil {
		return false, m.writeErr
	}
	m.body.Write(terminator)
	m.ended = true
	return true, nil
}

func (m *mockSink) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = true
}

func (m *mockSink) HeadersSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headersSent
}

func (m *mockSink) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended
}

func (m *mockSink) ForceClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forceClosed = true
	m.ended = true
}

func (m *mockSink) bodyString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.body.String()
}

func (m *mockSink) statusCode() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func newActive(t *testing.T, sink ResponseSink, streaming bool) *Coordinator {
	t.Helper()
	c := New(sink, "req-test", streaming, nil)
	c.Activate(0)
	return c
}

func TestCancelAllOnce(t *testing.T) {
	tests := []struct {
		name   string
		reason Reason
		want   State
	}{
		{"completed", ReasonCompleted, StateCompleted},
		{"timeout", ReasonTimeout, StateTimedOut},
		{"disconnect", ReasonClientDisconnected, StateCancelled},
		{"upstream error", ReasonUpstreamError, StateErrored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newActive(t, &mockSink{}, false)

			if !c.CancelAll(tt.reason) {
				t.Fatal("first CancelAll must win")
			}
			if got := c.State(); got != tt.want {
				t.Errorf("expected state %v, got %v", tt.want, got)
			}
			if c.CancelAll(ReasonTimeout) {
				t.Error("second CancelAll must observe the terminal state and no-op")
			}
			if got := c.State(); got != tt.want {
				t.Errorf("losing CancelAll changed state to %v", got)
			}
		})
	}
}

func TestCancelAllBeforeActivate(t *testing.T) {
	c := New(&mockSink{}, "req-test", false, nil)
	if c.CancelAll(ReasonCompleted) {
		t.Error("CancelAll on an idle coordinator must not transition")
	}
}

func TestCancelHandlersInvoked(t *testing.T) {
	c := newActive(t, &mockSink{}, true)

	var got []Reason
	if !c.RegisterCancelHandler(func(r Reason) { got = append(got, r) }) {
		t.Fatal("registration on an active coordinator must succeed")
	}
	if !c.RegisterCancelHandler(func(r Reason) { got = append(got, r) }) {
		t.Fatal("second registration must succeed")
	}

	c.CancelAll(ReasonClientDisconnected)

	if len(got) != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", len(got))
	}
	for _, r := range got {
		if r != ReasonClientDisconnected {
			t.Errorf("handler received reason %q", r)
		}
	}

	if c.RegisterCancelHandler(func(Reason) {}) {
		t.Error("registration after terminal transition must be refused")
	}
}

func TestCancelHandlerPanicContained(t *testing.T) {
	c := newActive(t, &mockSink{}, false)

	ran := false
	c.RegisterCancelHandler(func(Reason) { panic("boom") })
	c.RegisterCancelHandler(func(Reason) { ran = true })

	if !c.CancelAll(ReasonUpstreamError) {
		t.Fatal("CancelAll must still complete")
	}
	if !ran {
		t.Error("a panicking handler must not prevent later handlers")
	}
}

func TestTimeoutWritesEnvelope(t *testing.T) {
	sink := &mockSink{}
	c := New(sink, "req-timeout", false, nil)
	c.Activate(5 * time.Millisecond)

	deadline := time.After(time.Second)
	for c.State() != StateTimedOut {
		select {
		case <-deadline:
			t.Fatal("coordinator never timed out")
		case <-time.After(time.Millisecond):
		}
	}
	// WaitTerminal returns only after the timer goroutine finished writing.
	c.WaitTerminal()
	if sink.bodyString() == "" {
		t.Fatal("timeout envelope not written before WaitTerminal returned")
	}

	if sink.statusCode() != http.StatusRequestTimeout {
		t.Errorf("expected status 408, got %d", sink.statusCode())
	}

	var envelope types.APIError
	if err := json.Unmarshal([]byte(sink.bodyString()), &envelope); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if envelope.Error.Code == nil || *envelope.Error.Code != types.ErrorCodeTimeout {
		t.Errorf("expected code %q, got %v", types.ErrorCodeTimeout, envelope.Error.Code)
	}
	if envelope.Error.Type != types.ErrorTypeAPI {
		t.Errorf("expected type %q, got %q", types.ErrorTypeAPI, envelope.Error.Type)
	}
	if envelope.Error.RequestID != "req-timeout" {
		t.Errorf("expected request id in envelope, got %q", envelope.Error.RequestID)
	}
}

func TestTimerStoppedAfterCompletion(t *testing.T) {
	sink := &mockSink{}
	c := New(sink, "req-test", false, nil)
	c.Activate(10 * time.Millisecond)

	c.CancelAll(ReasonCompleted)
	c.Finalize(KindSuccess, http.StatusOK, []byte(`{}`))

	time.Sleep(30 * time.Millisecond)

	if got := c.State(); got != StateCompleted {
		t.Errorf("late timer changed state to %v", got)
	}
	if sink.status != http.StatusOK {
		t.Errorf("late timer rewrote status to %d", sink.status)
	}
	if sink.body.String() != "{}" {
		t.Errorf("late timer appended to body: %q", sink.body.String())
	}
}

func TestFinalizeSkippedAfterHeaders(t *testing.T) {
	sink := &mockSink{}
	c := newActive(t, sink, true)

	sink.WriteHeader(http.StatusOK, nil)
	before := sink.body.Len()

	if c.Finalize(KindTimeout, http.StatusRequestTimeout, []byte(`{"error":{}}`)) {
		t.Error("Finalize must refuse to write after headers were sent")
	}
	if sink.body.Len() != before {
		t.Error("Finalize wrote despite sent headers")
	}
	if sink.status != http.StatusOK {
		t.Errorf("status changed to %d", sink.status)
	}
}

// A timeout finalize racing the first streamed chunk must resolve to one
// winner: either the envelope is the whole response, or the stream owns the
// response and the envelope is dropped. Never both.
func TestTimeoutEnvelopeNeverSplicedIntoStream(t *testing.T) {
	envelope := `{"error":{"code":"timeout"}}`
	delta := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"

	for i := 0; i < 500; i++ {
		sink := &mockSink{}
		c := newActive(t, sink, true)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.CancelAll(ReasonTimeout)
			c.Finalize(KindTimeout, http.StatusRequestTimeout, []byte(envelope))
		}()
		go func() {
			defer wg.Done()
			sink.WriteHeader(http.StatusOK, map[string]string{"Content-Type": "text/event-stream"})
			_ = sink.WriteChunk([]byte(delta))
		}()
		wg.Wait()

		body := sink.bodyString()
		if strings.Contains(body, envelope) && body != envelope {
			t.Fatalf("iteration %d: envelope spliced into live stream: %q", i, body)
		}
		if body == envelope && sink.statusCode() != http.StatusRequestTimeout {
			t.Fatalf("iteration %d: envelope body with status %d", i, sink.statusCode())
		}
	}
}

func TestFinishStream(t *testing.T) {
	sink := &mockSink{}
	c := newActive(t, sink, true)
	sink.WriteHeader(http.StatusOK, nil)

	c.CancelAll(ReasonCompleted)
	if !c.FinishStream() {
		t.Fatal("FinishStream on a live response must succeed")
	}
	if sink.body.String() != types.SSEDone {
		t.Errorf("expected terminal %q, got %q", types.SSEDone, sink.body.String())
	}
	if !sink.ended {
		t.Error("FinishStream must end the response")
	}

	// Clean completion; nothing to force-close.
	c.ForceCloseIfUnhealthy()
	if sink.forceClosed {
		t.Error("clean stream completion must not be force-closed")
	}
}

func TestForceCloseHalfSentStream(t *testing.T) {
	sink := &mockSink{}
	c := newActive(t, sink, true)

	// Headers and some chunks went out, then the upstream died.
	sink.WriteHeader(http.StatusOK, nil)
	_ = sink.WriteChunk([]byte("data: {}\n\n"))

	c.CancelAll(ReasonUpstreamError)
	c.ForceCloseIfUnhealthy()

	if !sink.forceClosed {
		t.Error("half-sent stream must be force-closed, not left hanging")
	}
}

func TestForceCloseSkippedBeforeHeaders(t *testing.T) {
	sink := &mockSink{}
	c := newActive(t, sink, true)

	c.CancelAll(ReasonUpstreamError)
	c.ForceCloseIfUnhealthy()

	if sink.forceClosed {
		t.Error("nothing was sent; the connection can still carry an error body")
	}
}

func TestWaitTerminalImmediateWhenCallerOwnsWrite(t *testing.T) {
	c := newActive(t, &mockSink{}, false)
	c.CancelAll(ReasonCompleted)

	done := make(chan struct{})
	go func() {
		c.WaitTerminal()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitTerminal must not block for non-timeout transitions")
	}
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		name      string
		base      time.Duration
		streaming bool
		want      time.Duration
	}{
		{"unary uses base", 30 * time.Second, false, 30 * time.Second},
		{"streaming multiplied", 40 * time.Second, true, 160 * time.Second},
		{"streaming floored", 10 * time.Second, true, 120 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequestTimeout(tt.base, tt.streaming); got != tt.want {
				t.Errorf("RequestTimeout(%v, %v) = %v, want %v", tt.base, tt.streaming, got, tt.want)
			}
		})
	}
}
