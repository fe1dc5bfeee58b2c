package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/trendbrief/internal/httputil"
	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/util"
	"github.com/ppiankov/trendbrief/internal/worker"
)

// fetchSleep waits between retries; tests replace it
var fetchSleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ErrRobotsDisallowed is returned when robots.txt forbids an ad-hoc feed URL
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// StatusError is a non-2xx response from a source
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// Temporary reports whether the status is worth retrying
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout
}

// Request describes one outbound GET
type Request struct {
	URL         string
	Accept      string
	CheckRobots bool
}

// Response is a fully read response body
type Response struct {
	Body        []byte
	ContentType string
	FinalURL    string
}

// Client performs outbound GETs for every HTTP-backed source kind
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxRetries int
	limiter    *worker.Limiter
	robots     *util.RobotsChecker
}

// NewClient builds a client from the HTTP configuration. limiter may be nil.
func NewClient(cfg model.HTTPConfig, limiter *worker.Limiter) *Client {
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: util.NewTransport(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}

	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 4_000_000
	}

	c := &Client{
		httpClient: httpClient,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		maxRetries: cfg.MaxRetries,
		limiter:    limiter,
	}
	if cfg.RespectRobots {
		c.robots = util.NewRobotsChecker(httpClient, cfg.UserAgent)
	}
	return c
}

// Get fetches req.URL, retrying network errors and 5xx responses with exponential backoff.
// 429 responses are retried by httputil.DoWithRetry.
func (c *Client) Get(ctx context.Context, req Request) (*Response, error) {
	if req.CheckRobots && c.robots != nil {
		allowed, delay, err := c.robots.CanFetch(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrRobotsDisallowed
		}
		if delay > 0 {
			if err := fetchSleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
			if err := fetchSleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := c.get(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, req Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.WaitURL(ctx, req.URL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	accept := req.Accept
	if accept == "" {
		accept = "*/*"
	}
	httpReq.Header.Set("Accept", accept)

	resp, err := httputil.DoWithRetry(ctx, c.httpClient, httpReq, 2)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
