package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/trendbrief/internal/logging"
)

func anthropicSSE(w io.Writer, event, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestAnthropicProvider_Stream_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key header test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("Expected anthropic-version header 2023-06-01, got %s", r.Header.Get("anthropic-version"))
		}
		var req anthropicRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream || req.System != "be brief" || req.MaxTokens != 50 {
			t.Errorf("unexpected request: %+v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		anthropicSSE(w, "message_start", `{"type":"message_start","message":{"id":"msg_1"}}`)
		anthropicSSE(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		_, _ = fmt.Fprint(w, "event: ping\ndata: {\"type\": \"ping\"}\n\n")
		anthropicSSE(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"AI "}}`)
		anthropicSSE(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"leads today."}}`)
		anthropicSSE(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		anthropicSSE(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: server.URL}, logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	stream, err := provider.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	parts, err := collect(t, stream)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if got := strings.Join(parts, ""); got != "AI leads today." {
		t.Errorf("Expected %q, got %q", "AI leads today.", got)
	}

	// Recv after the end keeps reporting EOF
	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after message_stop, got %v", err)
	}
}

func TestAnthropicProvider_Stream_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(Config{APIKey: "bad", BaseURL: server.URL}, logging.Discard())
	_, err := provider.Stream(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "authentication_error") {
		t.Errorf("Expected error type in message, got %v", err)
	}
}

func TestAnthropicProvider_Stream_ErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		anthropicSSE(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`)
		anthropicSSE(w, "error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(Config{APIKey: "k", BaseURL: server.URL}, logging.Discard())
	stream, err := provider.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	parts, err := collect(t, stream)
	if err == nil || !strings.Contains(err.Error(), "Overloaded") {
		t.Errorf("Expected overloaded error, got %v", err)
	}
	if len(parts) != 1 {
		t.Errorf("Expected one fragment before the error, got %q", parts)
	}
}

func TestAnthropicProvider_Stream_Truncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		anthropicSSE(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`)
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(Config{APIKey: "k", BaseURL: server.URL}, logging.Discard())
	stream, err := provider.Stream(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if _, err := collect(t, stream); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected unexpected EOF without message_stop, got %v", err)
	}
}
