package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"streamgate/internal/coordinator"
	"streamgate/internal/relay"
	"streamgate/internal/translate"
	"streamgate/internal/transport/http/middleware"
	"streamgate/internal/types"
	"streamgate/internal/upstream"
)

// tokenCountTimeout is the maximum time to wait for the background prompt
// token estimate before proceeding without it.
const tokenCountTimeout = 100 * time.Millisecond

// statusClientClosed records client disconnects in logs and metrics.
const statusClientClosed = 499

// chatResult summarizes one proxied request for logging and metrics.
type chatResult struct {
	Model            string
	IsStreaming      bool
	StatusCode       int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	UsageEstimated   bool
	ErrorMessage     string
}

// ChatCompletions relays a chat completion request to the upstream,
// streaming or unary depending on the request shape. The coordinator is the
// single authority over the terminal client write.
func (h *Handlers) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := middleware.GetRequestID(r.Context())
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var req types.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.ErrInvalidRequest("invalid request format"))
		return
	}
	if err := req.Validate(); err != nil {
		types.WriteError(w, http.StatusBadRequest, types.ErrInvalidRequest(err.Error()))
		return
	}

	bnd := h.Bindings.Resolve(req.Model)
	payload := translate.ToUpstreamPayload(&req, bnd)

	// Estimate prompt tokens in the background so the upstream call starts
	// immediately; the estimate is only an accounting fallback.
	tokensChan := make(chan int, 1)
	go func() {
		defer close(tokensChan)
		if h.Estimator != nil {
			tokensChan <- h.Estimator.EstimateTokens(payload.Prompt, bnd.BackendModel)
		}
	}()

	if h.Metrics != nil {
		h.Metrics.RequestStarted()
	}

	sink := coordinator.NewHTTPSink(w)
	coord := coordinator.New(sink, requestID, req.Stream, h.Logger)
	timeout := coordinator.RequestTimeout(h.TimeoutBase, req.Stream)
	coord.Activate(timeout)

	var result *chatResult
	if req.Stream {
		result = h.streamChat(r.Context(), coord, sink, payload, req.Model, timeout, tokensChan)
	} else {
		result = h.unaryChat(r.Context(), coord, payload, req.Model)
	}

	// If the timeout timer won the terminal transition its goroutine is
	// writing the 408 envelope; returning earlier would tear down the
	// response underneath it.
	coord.WaitTerminal()

	duration := time.Since(start)
	if h.Metrics != nil {
		h.Metrics.RequestFinished(req.Model, req.Stream, result.StatusCode,
			duration, result.PromptTokens, result.CompletionTokens)
	}
	go h.logChatRequest(requestID, result, duration)
}

// streamChat runs the streaming path: open the upstream stream, relay
// chunks through the translator, and let the coordinator decide who writes
// the terminal output.
func (h *Handlers) streamChat(ctx context.Context, coord *coordinator.Coordinator,
	sink coordinator.ResponseSink, payload *upstream.Payload, model string,
	timeout time.Duration, tokensChan <-chan int) *chatResult {

	result := &chatResult{Model: model, IsStreaming: true}

	upstreamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancellation is cooperative: the coordinator only tells us to stop,
	// aborting the upstream read is this path's job.
	coord.RegisterCancelHandler(func(coordinator.Reason) { cancel() })

	body, err := h.Upstream.StreamChat(upstreamCtx, payload)
	if err != nil {
		return h.failStream(ctx, coord, result, err)
	}
	defer body.Close()

	promptTokens := collectTokens(tokensChan)
	streamID := translate.NewCompletionID()
	created := time.Now().Unix()

	rel := relay.New(relay.Options{
		StreamID:      streamID,
		Model:         model,
		Created:       created,
		PromptTokens:  promptTokens,
		Estimator:     h.Estimator,
		AbortUpstream: cancel,
		Bound:         relay.UpstreamBound(timeout),
		Logger:        h.Logger,
	})

	emit := func(chunk *types.ChatCompletionChunk) error {
		if !sink.HeadersSent() {
			sink.WriteHeader(http.StatusOK, sseHeaders())
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return err
		}
		return sink.WriteChunk(types.FormatSSE(data))
	}

	res, err := rel.Run(upstreamCtx, body, emit)
	if err != nil {
		return h.failStream(ctx, coord, result, err)
	}

	result.PromptTokens = res.Usage.PromptTokens
	result.CompletionTokens = res.Usage.CompletionTokens
	result.TotalTokens = res.Usage.TotalTokens
	result.UsageEstimated = res.UsageEstimated

	if !coord.CancelAll(coordinator.ReasonCompleted) {
		// Another path (timeout, disconnect) already terminated the request.
		result.StatusCode = terminalStatus(coord.State())
		return result
	}

	if !sink.HeadersSent() {
		sink.WriteHeader(http.StatusOK, sseHeaders())
	}
	if final, err := json.Marshal(translate.FinalChunk(streamID, model, created)); err == nil {
		_ = sink.WriteChunk(types.FormatSSE(final))
	}
	coord.FinishStream()

	result.StatusCode = http.StatusOK
	return result
}

// failStream classifies a streaming failure and performs the terminal
// action if this path still owns it.
func (h *Handlers) failStream(ctx context.Context, coord *coordinator.Coordinator,
	result *chatResult, err error) *chatResult {

	result.ErrorMessage = err.Error()

	if ctx.Err() != nil {
		// Client went away; nothing left to write to.
		coord.CancelAll(coordinator.ReasonClientDisconnected)
		result.StatusCode = terminalStatus(coord.State())
		return result
	}

	if !coord.CancelAll(coordinator.ReasonUpstreamError) {
		// Timed out (or otherwise terminated) before we got here; the
		// terminal write already happened elsewhere.
		result.StatusCode = terminalStatus(coord.State())
		return result
	}

	result.StatusCode = http.StatusBadGateway
	coord.Finalize(coordinator.KindError, http.StatusBadGateway,
		types.ErrUpstream(upstreamErrorMessage(err)).Marshal())
	// If headers already went out the stream is truncated; make sure the
	// client is not left hanging on a half-sent stream.
	coord.ForceCloseIfUnhealthy()
	return result
}

// unaryChat runs the non-streaming path through the same coordinator
// discipline.
func (h *Handlers) unaryChat(ctx context.Context, coord *coordinator.Coordinator,
	payload *upstream.Payload, model string) *chatResult {

	result := &chatResult{Model: model}

	upstreamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	coord.RegisterCancelHandler(func(coordinator.Reason) { cancel() })

	resp, err := h.Upstream.Chat(upstreamCtx, payload)
	if err != nil {
		result.ErrorMessage = err.Error()

		if ctx.Err() != nil {
			coord.CancelAll(coordinator.ReasonClientDisconnected)
			result.StatusCode = terminalStatus(coord.State())
			return result
		}
		if !coord.CancelAll(coordinator.ReasonUpstreamError) {
			result.StatusCode = terminalStatus(coord.State())
			return result
		}
		result.StatusCode = http.StatusBadGateway
		coord.Finalize(coordinator.KindError, http.StatusBadGateway,
			types.ErrUpstream(upstreamErrorMessage(err)).Marshal())
		return result
	}

	completion := translate.FromUpstreamUnary(resp, model)
	result.PromptTokens = completion.Usage.PromptTokens
	result.CompletionTokens = completion.Usage.CompletionTokens
	result.TotalTokens = completion.Usage.TotalTokens

	if !coord.CancelAll(coordinator.ReasonCompleted) {
		result.StatusCode = terminalStatus(coord.State())
		return result
	}

	body, err := json.Marshal(completion)
	if err != nil {
		result.StatusCode = http.StatusInternalServerError
		result.ErrorMessage = err.Error()
		coord.Finalize(coordinator.KindError, http.StatusInternalServerError,
			types.ErrServer("failed to encode response").Marshal())
		return result
	}

	result.StatusCode = http.StatusOK
	coord.Finalize(coordinator.KindSuccess, http.StatusOK, body)
	return result
}

// logChatRequest persists the request log and daily usage asynchronously.
func (h *Handlers) logChatRequest(requestID string, result *chatResult, duration time.Duration) {
	if h.Storage == nil || result == nil {
		return
	}

	log := &storageLog{
		RequestID: requestID,
		Result:    result,
		Duration:  duration,
	}
	log.write(h)
}

// collectTokens waits briefly for the background prompt estimate.
func collectTokens(tokensChan <-chan int) int {
	select {
	case tokens, ok := <-tokensChan:
		if ok {
			return tokens
		}
	case <-time.After(tokenCountTimeout):
		// Estimation took too long; the upstream may report counts anyway.
	}
	return 0
}

// terminalStatus maps a coordinator terminal state to the status recorded
// in logs and metrics for paths that did not perform the terminal write.
func terminalStatus(state coordinator.State) int {
	switch state {
	case coordinator.StateTimedOut:
		return http.StatusRequestTimeout
	case coordinator.StateCancelled:
		return statusClientClosed
	case coordinator.StateErrored:
		return http.StatusBadGateway
	case coordinator.StateCompleted:
		return http.StatusOK
	}
	return 0
}

func sseHeaders() map[string]string {
	return map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
}

// upstreamErrorMessage keeps upstream detail out of client-facing errors
// while preserving the relay's taxonomy.
func upstreamErrorMessage(err error) string {
	var streamErr *relay.StreamError
	switch {
	case errors.Is(err, relay.ErrIncompleteStream):
		return "upstream closed the stream without producing output"
	case errors.As(err, &streamErr):
		return "upstream stream failed mid-response"
	default:
		return "upstream request failed"
	}
}
