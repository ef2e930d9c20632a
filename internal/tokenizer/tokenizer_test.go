package tokenizer

import "testing"

func TestFallbackEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single char rounds up", "a", 1},
		{"exact multiple", "abcd", 1},
		{"rounds up", "abcde", 2},
		{"longer text", "The quick brown fox.", 5},
		{"multibyte counts runes", "héllo", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackEstimate(tt.text); got != tt.want {
				t.Errorf("FallbackEstimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestResolveEncoding(t *testing.T) {
	est := New()

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o", EncodingO200kBase},
		{"gpt-4o-mini", EncodingO200kBase},
		{"gpt-4", EncodingCL100kBase},
		{"gpt-3.5-turbo", EncodingCL100kBase},
		{"o1-preview", EncodingO200kBase},
		{"claude-sonnet-4", EncodingCL100kBase},
		{"unknown-model", EncodingCL100kBase},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := est.resolveEncoding(tt.model); got != tt.want {
				t.Errorf("resolveEncoding(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	est := New()

	if got := est.EstimateTokens("", "gpt-4o"); got != 0 {
		t.Errorf("empty text must estimate 0 tokens, got %d", got)
	}

	got := est.EstimateTokens("Hello, world! How are you today?", "gpt-4o")
	if got <= 0 {
		t.Errorf("expected a positive estimate, got %d", got)
	}
	// Whatever the path (tiktoken or fallback), the estimate stays in a
	// plausible band for a short sentence.
	if got > 32 {
		t.Errorf("estimate %d implausibly high for a short sentence", got)
	}
}

func TestEstimateTokensCachesEncoding(t *testing.T) {
	est := New()

	a := est.EstimateTokens("same text twice", "gpt-4o")
	b := est.EstimateTokens("same text twice", "gpt-4o")
	if a != b {
		t.Errorf("repeated estimation diverged: %d vs %d", a, b)
	}
}
