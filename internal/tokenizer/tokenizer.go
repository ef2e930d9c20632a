// Package tokenizer estimates token counts for prompts and completions.
// Counts produced here are estimates for accounting fallback, never
// authoritative; the upstream's reported counters always win when present.
package tokenizer

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator estimates token counts for a text and model.
type Estimator interface {
	// EstimateTokens returns an estimated token count for text.
	EstimateTokens(text string, model string) int
}

// Encoding names used by tiktoken.
const (
	EncodingCL100kBase = "cl100k_base" // GPT-4, GPT-3.5-turbo
	EncodingO200kBase  = "o200k_base"  // GPT-4o, o1 models
)

// charsPerToken is the crude fallback ratio when no encoding is available.
const charsPerToken = 4

// modelEncoding pairs a prefix with its encoding.
type modelEncoding struct {
	prefix   string
	encoding string
}

// modelEncodings lists model prefixes and their encodings.
// Ordered by prefix length (longest first) to ensure correct matching.
var modelEncodings = []modelEncoding{
	{"gpt-4o", EncodingO200kBase}, // Must come before "gpt-4"
	{"gpt-3.5", EncodingCL100kBase},
	{"gpt-4", EncodingCL100kBase},
	{"chatgpt", EncodingO200kBase},
	{"o1", EncodingO200kBase},
	{"o3", EncodingO200kBase},
}

// TiktokenEstimator implements Estimator using tiktoken-go, falling back to
// a character-ratio heuristic when an encoding cannot be loaded.
type TiktokenEstimator struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// New creates a new TiktokenEstimator.
func New() *TiktokenEstimator {
	return &TiktokenEstimator{
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// EstimateTokens returns an estimated token count for text.
func (t *TiktokenEstimator) EstimateTokens(text string, model string) int {
	if text == "" {
		return 0
	}

	enc, err := t.getEncoding(model)
	if err != nil {
		return FallbackEstimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// FallbackEstimate approximates tokens as length/4, rounded up.
// A rough heuristic with no accuracy target; callers must surface the
// result as an estimate.
func FallbackEstimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// getEncoding returns the tiktoken encoding for a model, with caching.
func (t *TiktokenEstimator) getEncoding(model string) (*tiktoken.Tiktoken, error) {
	encodingName := t.resolveEncoding(model)

	// Check cache first
	t.mu.RLock()
	enc, ok := t.encodings[encodingName]
	t.mu.RUnlock()
	if ok {
		return enc, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if enc, ok = t.encodings[encodingName]; ok {
		return enc, nil
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	t.encodings[encodingName] = enc
	return enc, nil
}

// resolveEncoding determines the encoding name for a model.
func (t *TiktokenEstimator) resolveEncoding(model string) string {
	modelLower := strings.ToLower(model)

	for _, me := range modelEncodings {
		if strings.HasPrefix(modelLower, me.prefix) {
			return me.encoding
		}
	}

	// Default to cl100k_base for unknown models (including Claude, etc.)
	return EncodingCL100kBase
}
