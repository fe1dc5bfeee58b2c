package model

import "log/slog"

// GenerationRequest is the fully built input for a generative backend.
// It is immutable once built and must never be logged verbatim.
type GenerationRequest struct {
	SystemPrompt string
	PromptText   string
	MaxTokens    int
	ModelRef     string
	Temperature  float32
}

// LogValue keeps prompt text out of structured logs
func (r GenerationRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("model", r.ModelRef),
		slog.Int("max_tokens", r.MaxTokens),
		slog.Int("prompt_chars", len([]rune(r.PromptText))),
	)
}

// StreamChunk is one fragment of generated text.
// Consumers concatenate chunks in arrival order; the terminal chunk has Done set.
type StreamChunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Done  bool   `json:"done"`
}

// GenerationState is a state of the generation orchestrator
type GenerationState string

const (
	StateIdle         GenerationState = "IDLE"
	StateGenerating   GenerationState = "GENERATING"
	StateStreaming    GenerationState = "STREAMING"
	StateShortCircuit GenerationState = "SHORT_CIRCUIT"
	StateComplete     GenerationState = "COMPLETE"
	StateFailed       GenerationState = "FAILED"
	StateCancelled    GenerationState = "CANCELLED"
)

// Terminal reports whether no further transition is possible
func (s GenerationState) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}
