package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/trendbrief/internal/logging"
)

func openAIChunk(text string) string {
	return fmt.Sprintf(`data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", text)
}

func TestOpenAIProvider_Stream_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("Expected stream=true, got %v", body["stream"])
		}
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("Expected model gpt-4o-mini, got %v", body["model"])
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, openAIChunk("Hello"))
		_, _ = fmt.Fprint(w, openAIChunk(""))
		_, _ = fmt.Fprint(w, openAIChunk(" world"))
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini"}, logging.Discard())
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
	if strings.Join(parts, "") != "Hello world" || len(parts) != 2 {
		t.Errorf("Expected fragments [Hello, world], got %q", parts)
	}
}

func TestOpenAIProvider_Stream_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "bad-key", BaseURL: server.URL}, logging.Discard())
	_, err := provider.Stream(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "OpenAI API error") {
		t.Errorf("Expected wrapped API error, got %v", err)
	}
}

func TestOpenAIProvider_Stream_CancelMidStream(t *testing.T) {
	disconnected := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, openAIChunk("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(disconnected)
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "k", BaseURL: server.URL}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := provider.Stream(ctx, testRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer func() { _ = stream.Close() }()

	if text, err := stream.Recv(); err != nil || text != "partial" {
		t.Fatalf("Expected first fragment, got %q, %v", text, err)
	}
	cancel()
	if _, err := stream.Recv(); err == nil {
		t.Error("Expected error after cancellation")
	}

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Error("upstream request was not cancelled")
	}
}
