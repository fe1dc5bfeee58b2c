// Package llm streams generated text from hosted and local language models.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/util"
)

// Backend is a generative model that streams its output
type Backend interface {
	// Name returns the provider name
	Name() string

	// Stream starts generation. Cancelling ctx aborts the upstream call.
	Stream(ctx context.Context, req model.GenerationRequest) (Stream, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Stream yields text fragments in order. Recv returns io.EOF after the last fragment.
// Close must be called on every path and is safe to call twice.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "gemini", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (OpenAI-compatible gateways, Ollama)
	BaseURL string

	// Timeout bounds waiting for response headers; the orchestrator owns the total deadline
	Timeout time.Duration

	// MaxTokens is used when a request does not set one
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30 * time.Second,
		MaxTokens: 2000,
	}
}

// ConfigFromModel converts the application config to llm.Config
func ConfigFromModel(l model.LLMConfig, h model.HTTPConfig) Config {
	return Config{
		Provider:   l.Provider,
		Model:      l.Model,
		APIKey:     l.APIKey,
		BaseURL:    l.BaseURL,
		Timeout:    l.Timeout,
		MaxTokens:  l.MaxTokens,
		HTTPProxy:  h.HTTPProxy,
		HTTPSProxy: h.HTTPSProxy,
		NoProxy:    h.NoProxy,
	}
}

// newHTTPClient builds a client suitable for long streamed bodies.
// Only the wait for headers is bounded; the body may take as long as ctx allows.
func newHTTPClient(config Config) *http.Client {
	transport := util.NewTransport(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

func modelOrDefault(req model.GenerationRequest, config Config, fallback string) string {
	if req.ModelRef != "" {
		return req.ModelRef
	}
	if config.Model != "" {
		return config.Model
	}
	return fallback
}

func maxTokensOrDefault(req model.GenerationRequest, config Config) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if config.MaxTokens > 0 {
		return config.MaxTokens
	}
	return 1000
}
