package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ppiankov/trendbrief/internal/model"
)

// GeminiProvider streams from Google Gemini
type GeminiProvider struct {
	client *genai.Client
	config Config
	logger *slog.Logger
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, config Config, logger *slog.Logger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, model.NewConfigurationError("llm.api_key", "Gemini API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(config.BaseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, config: config, logger: logger}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// IsAvailable checks that the configured model can be described
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	name := modelOrDefault(model.GenerationRequest{}, p.config, "gemini-1.5-flash")
	if _, err := p.client.GenerativeModel(name).Info(ctx); err != nil {
		p.logger.Warn("gemini availability check failed", "error", err)
		return false
	}
	return true
}

// Stream starts a streamed generation
func (p *GeminiProvider) Stream(ctx context.Context, req model.GenerationRequest) (Stream, error) {
	gm := p.client.GenerativeModel(modelOrDefault(req, p.config, "gemini-1.5-flash"))
	gm.SetTemperature(req.Temperature)
	gm.SetMaxOutputTokens(int32(maxTokensOrDefault(req, p.config)))
	if req.SystemPrompt != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}

	// Cancelling streamCtx stops the iterator on Close
	streamCtx, cancel := context.WithCancel(ctx)
	return &geminiStream{iter: gm.GenerateContentStream(streamCtx, genai.Text(req.PromptText)), cancel: cancel}, nil
}

// Close releases the underlying client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

type geminiStream struct {
	iter   *genai.GenerateContentResponseIterator
	cancel context.CancelFunc
	once   sync.Once
}

func (s *geminiStream) Recv() (string, error) {
	for {
		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("Gemini stream: %w", err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	return strings.Join(parts, "")
}
