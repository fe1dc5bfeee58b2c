package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ppiankov/trendbrief/internal/model"
)

// NewBackend creates a streaming backend based on configuration
func NewBackend(ctx context.Context, config Config, logger *slog.Logger) (Backend, error) {
	logger = logger.With("component", "llm")

	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config, logger)

	case "anthropic", "claude":
		return NewAnthropicProvider(config, logger)

	case "ollama":
		return NewOllamaProvider(config, logger)

	case "gemini", "google":
		return NewGeminiProvider(ctx, config, logger)

	case "":
		// No provider configured: briefings can still short-circuit, generation fails
		return nil, nil

	default:
		return nil, model.NewConfigurationError("llm.provider", "unknown LLM provider: %s (supported: openai, anthropic, ollama, gemini)", config.Provider)
	}
}
