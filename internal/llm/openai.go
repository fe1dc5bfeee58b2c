package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/trendbrief/internal/model"
)

// OpenAIProvider streams chat completions from OpenAI or any compatible gateway
type OpenAIProvider struct {
	client *openai.Client
	config Config
	logger *slog.Logger
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config, logger *slog.Logger) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, model.NewConfigurationError("llm.api_key", "OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(config)

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	if _, err := p.client.ListModels(ctx); err != nil {
		p.logger.Warn("openai availability check failed", "error", err)
		return false
	}
	return true
}

// Stream starts a streamed chat completion
func (p *OpenAIProvider) Stream(ctx context.Context, req model.GenerationRequest) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.PromptText,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       modelOrDefault(req, p.config, openai.GPT4oMini),
		Messages:    messages,
		MaxTokens:   maxTokensOrDefault(req, p.config),
		Temperature: req.Temperature,
		Stream:      true,
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
	once   sync.Once
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("OpenAI stream: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	s.once.Do(func() { s.stream.Close() })
	return nil
}
