// Package coordinator owns the single outgoing client response for the
// lifetime of one request. Exactly one of natural completion, timeout,
// client disconnect or upstream failure ever performs the terminal write;
// every later attempt observes the terminal state and no-ops.
package coordinator

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"streamgate/internal/types"
)

// Reason identifies why a request's in-flight work is being cancelled.
type Reason string

const (
	ReasonTimeout            Reason = "request_timeout"
	ReasonCompleted          Reason = "request_completed"
	ReasonClientDisconnected Reason = "client_disconnected"
	ReasonUpstreamError      Reason = "upstream_error"
)

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCompleted
	StateTimedOut
	StateCancelled
	StateErrored
)

// Terminal reports whether s is one of the four terminal states.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	}
	return "unknown"
}

// terminalState maps a cancellation reason to the terminal state it produces.
func terminalState(reason Reason) State {
	switch reason {
	case ReasonCompleted:
		return StateCompleted
	case ReasonTimeout:
		return StateTimedOut
	case ReasonUpstreamError:
		return StateErrored
	default:
		return StateCancelled
	}
}

// FinalizeKind classifies the terminal client-visible output.
type FinalizeKind string

const (
	KindSuccess FinalizeKind = "success"
	KindTimeout FinalizeKind = "timeout"
	KindError   FinalizeKind = "error"
)

// Coordinator arbitrates all terminal writes for one request. All methods
// are safe to call from the handler goroutine and the timer goroutine; the
// one-time transition is a mutex-guarded compare-and-set.
type Coordinator struct {
	mu       sync.Mutex
	state    State
	sink     ResponseSink
	handlers []func(Reason)
	timer    *time.Timer

	requestID string
	streaming bool
	cleanEnd  bool

	// timeoutDone is closed once the timeout path has finished its client
	// writes; the handler goroutine must not return before then.
	timeoutDone chan struct{}

	logger *slog.Logger
}

// New creates a coordinator for one request. The sink is the only place
// client-visible bytes ever go.
func New(sink ResponseSink, requestID string, streaming bool, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		state:       StateIdle,
		sink:        sink,
		requestID:   requestID,
		streaming:   streaming,
		timeoutDone: make(chan struct{}),
		logger:      logger,
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Activate transitions Idle → Active and arms the request timeout. A zero
// timeout leaves the request unbounded.
func (c *Coordinator) Activate(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return
	}
	c.state = StateActive
	if timeout > 0 {
		c.timer = time.AfterFunc(timeout, c.onTimeout)
	}
}

// RegisterCancelHandler adds fn to the cancellation list. Returns false and
// does nothing once the coordinator is terminal. Handlers must be idempotent.
func (c *Coordinator) RegisterCancelHandler(fn func(Reason)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Terminal() {
		return false
	}
	c.handlers = append(c.handlers, fn)
	return true
}

// CancelAll performs the one-time terminal transition for the given reason
// and invokes every registered handler with it. Returns whether this call
// actually performed the cancellation; false means another path already
// terminated the request, a legitimate race the caller must treat as a no-op.
func (c *Coordinator) CancelAll(reason Reason) bool {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return false
	}
	c.state = terminalState(reason)
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	handlers := c.handlers
	c.handlers = nil
	c.mu.Unlock()

	for _, fn := range handlers {
		c.invokeHandler(fn, reason)
	}
	return true
}

// invokeHandler runs one cancel handler, containing panics so a misbehaving
// handler cannot take the request task down.
func (c *Coordinator) invokeHandler(fn func(Reason), reason Reason) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cancel handler panicked",
				"request_id", c.requestID, "reason", string(reason), "panic", r)
		}
	}()
	fn(reason)
}

// Finalize writes the terminal client-visible body (success, timeout or
// error envelope) only if no headers have been sent and the response has
// not ended; otherwise it is a silent no-op with a diagnostic, because the
// client connection may already be closing independently. The check and the
// write happen atomically at the sink, so a streaming first chunk racing a
// timeout can never end up with the envelope spliced into a live stream.
func (c *Coordinator) Finalize(kind FinalizeKind, status int, body []byte) bool {
	wrote, err := c.sink.Finalize(status, map[string]string{"Content-Type": "application/json"}, body)
	if err != nil {
		// A failed finalize write degrades to "client sees connection drop".
		c.logger.Error("finalize write failed",
			"request_id", c.requestID, "kind", string(kind), "error", err)
		c.sink.ForceClose()
		return false
	}
	if !wrote {
		c.logger.Debug("finalize skipped, response already underway",
			"request_id", c.requestID, "kind", string(kind),
			"headers_sent", c.sink.HeadersSent(), "ended", c.sink.Ended())
		return false
	}

	if kind == KindSuccess {
		c.markCleanEnd()
	}
	return true
}

// FinishStream terminates a streaming response cleanly: final [DONE] event
// and end of body. No-op if the response already ended.
func (c *Coordinator) FinishStream() bool {
	wrote, err := c.sink.EndStream([]byte(types.SSEDone))
	if err != nil {
		c.logger.Error("stream termination write failed",
			"request_id", c.requestID, "error", err)
		c.sink.ForceClose()
		return false
	}
	if !wrote {
		return false
	}
	c.markCleanEnd()
	return true
}

// ForceCloseIfUnhealthy destroys the client connection when a terminal
// transition was not a clean stream completion but headers already went
// out: a half-sent stream with no termination hangs the client forever.
func (c *Coordinator) ForceCloseIfUnhealthy() {
	c.mu.Lock()
	terminal := c.state.Terminal()
	clean := c.cleanEnd
	c.mu.Unlock()

	if !terminal || clean {
		return
	}
	if c.sink.HeadersSent() {
		c.logger.Warn("force-closing half-sent response",
			"request_id", c.requestID, "state", c.State().String())
		c.sink.ForceClose()
	}
}

func (c *Coordinator) markCleanEnd() {
	c.mu.Lock()
	c.cleanEnd = true
	c.mu.Unlock()
}

// WaitTerminal blocks until the goroutine that performed the terminal
// transition has finished its client-visible writes. Returns immediately
// when the caller's own path owns (or will own) the terminal write; only a
// timeout transition is performed by a foreign goroutine.
func (c *Coordinator) WaitTerminal() {
	if c.State() == StateTimedOut {
		<-c.timeoutDone
	}
}

// onTimeout fires when the request timer expires. If another path already
// terminated the request the firing is a no-op, not an error.
func (c *Coordinator) onTimeout() {
	defer close(c.timeoutDone)
	if !c.CancelAll(ReasonTimeout) {
		return
	}

	c.logger.Warn("request timed out",
		"request_id", c.requestID, "streaming", c.streaming)
	envelope := types.ErrTimeout(c.requestID, c.streaming).Marshal()
	c.Finalize(KindTimeout, http.StatusRequestTimeout, envelope)
	c.ForceCloseIfUnhealthy()
}
