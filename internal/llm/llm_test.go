package llm

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/generative-ai-go/genai"

	"github.com/ppiankov/trendbrief/internal/logging"
	"github.com/ppiankov/trendbrief/internal/model"
)

// collect drains a stream into a slice of fragments
func collect(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	defer func() { _ = s.Close() }()
	var out []string
	for {
		text, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, text)
	}
}

func testRequest() model.GenerationRequest {
	return model.GenerationRequest{
		SystemPrompt: "be brief",
		PromptText:   "## AI (1)\n1. [Weibo] AI breakthrough",
		MaxTokens:    50,
		Temperature:  0.2,
	}
}

func TestNewBackend_Disabled(t *testing.T) {
	backend, err := NewBackend(context.Background(), Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if backend != nil {
		t.Error("Expected nil backend when provider is empty")
	}
}

func TestNewBackend_UnknownProvider(t *testing.T) {
	_, err := NewBackend(context.Background(), Config{Provider: "llamafarm"}, logging.Discard())
	if !model.IsConfigurationError(err) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}

func TestNewBackend_Selects(t *testing.T) {
	cases := map[string]string{
		"openai":    "openai",
		"OpenAI":    "openai",
		"anthropic": "anthropic",
		"claude":    "anthropic",
		"ollama":    "ollama",
	}
	for provider, want := range cases {
		backend, err := NewBackend(context.Background(), Config{Provider: provider, APIKey: "k", Model: "m"}, logging.Discard())
		if err != nil {
			t.Fatalf("%s: unexpected error %v", provider, err)
		}
		if backend.Name() != want {
			t.Errorf("%s: expected %s, got %s", provider, want, backend.Name())
		}
	}
}

func TestNewBackend_MissingKeys(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic", "gemini"} {
		if _, err := NewBackend(context.Background(), Config{Provider: provider}, logging.Discard()); err == nil {
			t.Errorf("%s: expected error without API key", provider)
		}
	}
	if _, err := NewBackend(context.Background(), Config{Provider: "ollama"}, logging.Discard()); !model.IsConfigurationError(err) {
		t.Errorf("ollama: expected configuration error without model, got %v", err)
	}
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(
		model.LLMConfig{Provider: "openai", Model: "gpt-4o", APIKey: "k", MaxTokens: 900},
		model.HTTPConfig{HTTPSProxy: "http://proxy:3128"},
	)
	if cfg.Provider != "openai" || cfg.Model != "gpt-4o" || cfg.APIKey != "k" || cfg.MaxTokens != 900 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.HTTPSProxy != "http://proxy:3128" {
		t.Errorf("proxy not carried over: %q", cfg.HTTPSProxy)
	}
}

func TestModelAndTokenDefaults(t *testing.T) {
	cfg := Config{Model: "configured", MaxTokens: 300}
	if got := modelOrDefault(model.GenerationRequest{ModelRef: "override"}, cfg, "x"); got != "override" {
		t.Errorf("expected request model to win, got %s", got)
	}
	if got := modelOrDefault(model.GenerationRequest{}, cfg, "x"); got != "configured" {
		t.Errorf("expected configured model, got %s", got)
	}
	if got := modelOrDefault(model.GenerationRequest{}, Config{}, "x"); got != "x" {
		t.Errorf("expected fallback, got %s", got)
	}
	if got := maxTokensOrDefault(model.GenerationRequest{}, Config{}); got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
	if got := maxTokensOrDefault(model.GenerationRequest{}, cfg); got != 300 {
		t.Errorf("expected 300, got %d", got)
	}
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello"), genai.Text(" world")}},
		}},
	}
	if got := responseText(resp); got != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got)
	}
	if got := responseText(&genai.GenerateContentResponse{}); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Errorf("expected empty text for nil, got %q", got)
	}
}
