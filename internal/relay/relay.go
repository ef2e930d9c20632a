// Package relay turns the upstream's incremental byte stream into an
// ordered sequence of client-facing chunks, terminating exactly once with
// either a completion summary or a failure.
package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"streamgate/internal/tokenizer"
	"streamgate/internal/translate"
	"streamgate/internal/types"
	"streamgate/internal/upstream"
)

// Scanner buffer sizing; upstream lines can carry large deltas.
const (
	initialBufSize = 64 * 1024
	maxLineSize    = 256 * 1024
)

// upstreamGrace is subtracted from the outer timeout to derive the
// relay-local upstream bound, so the relay fails before the coordinator's
// timer would have to.
const upstreamGrace = 5 * time.Second

// UpstreamBound derives the relay-local abort bound from the outer request
// timeout. Never less than half the outer timeout.
func UpstreamBound(outer time.Duration) time.Duration {
	bound := outer - upstreamGrace
	if bound < outer/2 {
		bound = outer / 2
	}
	return bound
}

// EmitFunc receives translated chunks in decode order. Returning an error
// stops the relay; the chunk sink is assumed unusable afterwards.
type EmitFunc func(chunk *types.ChatCompletionChunk) error

// Options configures one relay run. A Relay serves exactly one request.
type Options struct {
	// StreamID, Model and Created stamp every emitted chunk.
	StreamID string
	Model    string
	Created  int64

	// PromptTokens is the pre-counted prompt estimate, used only when the
	// upstream omits its own counters.
	PromptTokens int

	// Estimator estimates completion tokens when counters are absent.
	// May be nil; the character-ratio fallback is used then.
	Estimator tokenizer.Estimator

	// AbortUpstream forcibly aborts the upstream connection. Armed on a
	// relay-local timer as a bound independent of the coordinator's, scoped
	// only to the upstream call. May be nil.
	AbortUpstream func()

	// Bound is the relay-local timer duration. Zero disables the timer.
	Bound time.Duration

	Logger *slog.Logger
}

// Result is the relay's resolved outcome.
type Result struct {
	// Output is the full aggregated completion text.
	Output string

	// Usage holds token counts. When UsageEstimated is true the numbers
	// were derived from text length, not reported by the upstream.
	Usage          types.Usage
	UsageEstimated bool

	// Chunks is how many deltas were emitted.
	Chunks int
}

// Relay reassembles line-delimited JSON records that may split across
// chunk boundaries and retranslates them into client chunks.
type Relay struct {
	opts       Options
	aggregated strings.Builder
	terminated bool
	seq        int
}

// New creates a relay for a single request.
func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Relay{opts: opts}
}

// Run consumes the upstream body until a terminating condition is reached,
// emitting one chunk per decoded record in arrival order. It resolves
// exactly once: with a Result on the sentinel or on a non-empty truncated
// stream, or with an error otherwise.
func (r *Relay) Run(ctx context.Context, body io.Reader, emit EmitFunc) (*Result, error) {
	if r.opts.Bound > 0 && r.opts.AbortUpstream != nil {
		timer := time.AfterFunc(r.opts.Bound, r.opts.AbortUpstream)
		defer timer.Stop()
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, initialBufSize), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec upstream.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Protocol noise is never fatal to the stream.
			r.opts.Logger.Debug("dropping undecodable upstream line",
				"stream_id", r.opts.StreamID, "error", err)
			continue
		}

		if rec.Terminal() {
			// Sentinel wins; nothing after it is processed even if more
			// bytes arrive before the connection closes.
			r.terminated = true
			return r.resolve(&rec), nil
		}

		if err := r.handleRecord(&rec, emit); err != nil {
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &StreamError{Cause: err}
	}

	// Stream ended without the sentinel. With output we degrade gracefully
	// to estimated usage; with nothing at all it is a failure.
	if r.aggregated.Len() > 0 {
		r.opts.Logger.Warn("upstream closed stream without sentinel, resolving with estimated usage",
			"stream_id", r.opts.StreamID, "chunks", r.seq)
		return r.resolve(nil), nil
	}
	return nil, ErrIncompleteStream
}

// handleRecord appends the delta and emits the translated chunk.
func (r *Relay) handleRecord(rec *upstream.Record, emit EmitFunc) error {
	chunk := translate.ToClientChunk(rec, r.seq, r.opts.StreamID, r.opts.Model, r.opts.Created)
	if chunk == nil {
		// Heartbeat (empty output), suppressed.
		return nil
	}

	r.aggregated.WriteString(*rec.Output)
	if err := emit(chunk); err != nil {
		return fmt.Errorf("chunk sink write failed: %w", err)
	}
	r.seq++
	return nil
}

// resolve builds the final Result. rec carries the sentinel's counters when
// termination was explicit; a nil rec means the connection closed without
// one and usage must be estimated.
func (r *Relay) resolve(rec *upstream.Record) *Result {
	res := &Result{
		Output: r.aggregated.String(),
		Chunks: r.seq,
	}

	if rec != nil && rec.HasUsage() {
		res.Usage = types.Usage{
			PromptTokens:     *rec.PromptTokens,
			CompletionTokens: *rec.CompletionTokens,
			TotalTokens:      *rec.PromptTokens + *rec.CompletionTokens,
		}
		return res
	}

	completion := r.estimate(res.Output)
	res.Usage = types.Usage{
		PromptTokens:     r.opts.PromptTokens,
		CompletionTokens: completion,
		TotalTokens:      r.opts.PromptTokens + completion,
	}
	res.UsageEstimated = true
	return res
}

func (r *Relay) estimate(text string) int {
	if r.opts.Estimator != nil {
		return r.opts.Estimator.EstimateTokens(text, r.opts.Model)
	}
	return tokenizer.FallbackEstimate(text)
}
