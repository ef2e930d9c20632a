// Package translate holds the pure mapping functions between the
// client-facing chat completion protocol and the upstream wire format.
// Nothing here performs I/O; every function is total and deterministic
// for well-formed inputs.
package translate

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"streamgate/internal/binding"
	"streamgate/internal/types"
	"streamgate/internal/upstream"
)

// CompletionIDPrefix prefixes synthesized completion identifiers.
const CompletionIDPrefix = "chatcmpl-"

// NewCompletionID synthesizes a completion identifier.
func NewCompletionID() string {
	return CompletionIDPrefix + uuid.New().String()
}

// ToUpstreamPayload flattens the validated request into the upstream's
// expected structure. Parameter ranges are a precondition here, not
// re-checked; the handler validates before translating.
func ToUpstreamPayload(req *types.ChatCompletionRequest, b binding.Binding) *upstream.Payload {
	return &upstream.Payload{
		BackendFamily: b.BackendFamily,
		BackendModel:  b.BackendModel,
		Prompt:        FlattenMessages(req.Messages),
		Stream:        req.Stream,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
	}
}

// FlattenMessages renders the ordered message sequence as the upstream's
// single prompt text, one "role: content" line per message.
func FlattenMessages(messages []types.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// FromUpstreamUnary wraps the upstream's single payload in the client's
// non-streaming completion envelope with a synthesized id and timestamp.
func FromUpstreamUnary(resp *upstream.UnaryResponse, model string) *types.ChatCompletionResponse {
	return &types.ChatCompletionResponse{
		ID:      NewCompletionID(),
		Object:  types.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []types.Choice{
			{
				Index:        0,
				Message:      types.NewTextMessage(types.RoleAssistant, resp.Output),
				FinishReason: types.FinishReasonStop,
			},
		},
		Usage: &types.Usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.PromptTokens + resp.CompletionTokens,
		},
	}
}

// ToClientChunk wraps one upstream record as an incremental delta chunk.
// Returns nil for the end-of-stream sentinel (output null) and for
// empty-string output, which the upstream uses as a heartbeat.
// sequenceIndex is carried on the choice for ordering diagnostics.
func ToClientChunk(rec *upstream.Record, sequenceIndex int, id, model string, created int64) *types.ChatCompletionChunk {
	if rec.Terminal() || *rec.Output == "" {
		return nil
	}
	return &types.ChatCompletionChunk{
		ID:      id,
		Object:  types.ObjectChatCompletionChunk,
		Created: created,
		Model:   model,
		Choices: []types.ChunkChoice{
			{
				Index: sequenceIndex,
				Delta: types.Delta{Content: *rec.Output},
			},
		},
	}
}

// FinalChunk builds the terminal chunk carrying the finish reason, emitted
// before the [DONE] event on clean stream completion.
func FinalChunk(id, model string, created int64) *types.ChatCompletionChunk {
	reason := types.FinishReasonStop
	return &types.ChatCompletionChunk{
		ID:      id,
		Object:  types.ObjectChatCompletionChunk,
		Created: created,
		Model:   model,
		Choices: []types.ChunkChoice{
			{
				Index:        0,
				Delta:        types.Delta{},
				FinishReason: &reason,
			},
		},
	}
}
