// Package upstream issues requests to the backing LLM aggregation API and
// exposes responses either as a single parsed payload or as a raw byte stream.
package upstream

// Payload is the translated request body sent to the upstream.
type Payload struct {
	BackendFamily string   `json:"backendFamily"`
	BackendModel  string   `json:"backendModel"`
	Prompt        string   `json:"prompt"`
	Stream        bool     `json:"stream"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"maxTokens,omitempty"`
}

// Record is one decoded line of the upstream's incremental protocol.
// Output == nil is the explicit end-of-stream sentinel; EOF without a
// sentinel means the stream ended with incomplete termination.
type Record struct {
	Output           *string `json:"output"`
	PromptTokens     *int    `json:"promptTokens,omitempty"`
	CompletionTokens *int    `json:"completionTokens,omitempty"`
}

// Terminal reports whether this record is the end-of-stream sentinel.
func (r *Record) Terminal() bool {
	return r.Output == nil
}

// HasUsage reports whether the record carries upstream token counters.
func (r *Record) HasUsage() bool {
	return r.PromptTokens != nil && r.CompletionTokens != nil
}

// UnaryResponse is the upstream's non-streaming reply.
type UnaryResponse struct {
	Output           string `json:"output"`
	PromptTokens     int    `json:"promptTokens"`
	CompletionTokens int    `json:"completionTokens"`
}
