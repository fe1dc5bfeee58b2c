// Package httputil provides HTTP helpers shared by feed fetching and notification delivery.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay is the first backoff on HTTP 429. Tests override it.
var RetryBaseDelay = time.Second

// MaxRetryDelay caps both the computed backoff and any Retry-After hint
var MaxRetryDelay = 30 * time.Second

const defaultMaxRetries = 3

// DoWithRetry executes req and retries on HTTP 429 with exponential backoff.
// A Retry-After header in seconds takes precedence over the computed delay.
// Request bodies are replayed through req.GetBody. After the last attempt the
// 429 response is returned as-is so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		attemptReq := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			attemptReq.Body = body
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		backoff := retryDelay(resp.Header.Get("Retry-After"), attempt)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func retryDelay(retryAfter string, attempt int) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		if d > MaxRetryDelay {
			return MaxRetryDelay
		}
		return d
	}

	if attempt > 16 {
		return MaxRetryDelay
	}
	d := RetryBaseDelay << attempt
	if d <= 0 || d > MaxRetryDelay {
		return MaxRetryDelay
	}
	return d
}

// RetryTransport applies DoWithRetry to every request. It lets client libraries that
// only accept an *http.Client share the 429 handling.
type RetryTransport struct {
	Client     *http.Client
	MaxRetries int
}

// RoundTrip implements http.RoundTripper
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	return DoWithRetry(req.Context(), client, req, t.MaxRetries)
}
