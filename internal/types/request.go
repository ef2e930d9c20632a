package types

import (
	"errors"
	"fmt"
)

// Limits for request validation.
const (
	TemperatureMin = 0.0
	TemperatureMax = 2.0
	MaxTokensMin   = 1
	MaxTokensMax   = 32768
)

// ErrNoMessages is returned when a request carries an empty message list.
var ErrNoMessages = errors.New("messages must not be empty")

// ChatCompletionRequest represents an OpenAI chat completion request.
// Optional fields use pointers to distinguish between unset and zero values.
// A request is treated as immutable once Validate has accepted it.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	Temperature *float64 `json:"temperature,omitempty"` // 0-2, default 1
	MaxTokens   *int     `json:"max_tokens,omitempty"`

	Stream bool `json:"stream,omitempty"`
}

// Validate checks the request against the accepted parameter ranges.
// Everything downstream of the handler relies on this having run once.
func (r *ChatCompletionRequest) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for i, m := range r.Messages {
		if !ValidRole(m.Role) {
			return fmt.Errorf("messages[%d]: invalid role %q", i, m.Role)
		}
	}
	if r.Temperature != nil && (*r.Temperature < TemperatureMin || *r.Temperature > TemperatureMax) {
		return fmt.Errorf("temperature must be between %g and %g", TemperatureMin, TemperatureMax)
	}
	if r.MaxTokens != nil && (*r.MaxTokens < MaxTokensMin || *r.MaxTokens > MaxTokensMax) {
		return fmt.Errorf("max_tokens must be between %d and %d", MaxTokensMin, MaxTokensMax)
	}
	return nil
}

// IsStreaming returns true if this is a streaming request.
func (r *ChatCompletionRequest) IsStreaming() bool {
	return r.Stream
}

// GetMaxTokens returns the effective max tokens limit, 0 when unset.
func (r *ChatCompletionRequest) GetMaxTokens() int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return 0
}
