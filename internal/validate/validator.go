package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/util"
)

const probeMaxRetries = 3

// probeSleepFunc is the sleep function used between retries (injectable for tests)
var probeSleepFunc = time.Sleep

// ProbeResult is the reachability of one source endpoint
type ProbeResult struct {
	SourceID     string     `json:"source_id"`
	URL          string     `json:"url,omitempty"`
	Reachable    bool       `json:"reachable"`
	StatusCode   int        `json:"status_code,omitempty"`
	RedirectURL  string     `json:"redirect_url,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Stale        bool       `json:"stale"` // Not modified for a week
	LatencyMS    int64      `json:"latency_ms"`
	Skipped      bool       `json:"skipped,omitempty"` // Not an HTTP source
	Error        string     `json:"error,omitempty"`
}

// Prober checks source endpoints concurrently
type Prober struct {
	httpClient *http.Client
	userAgent  string
	maxWorkers int
	now        func() time.Time
}

// NewProber creates a prober from the outbound HTTP settings
func NewProber(cfg model.HTTPConfig, maxWorkers int) *Prober {
	if maxWorkers <= 0 {
		maxWorkers = 20
	}

	return &Prober{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: util.NewTransport(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent:  cfg.UserAgent,
		maxWorkers: maxWorkers,
		now:        time.Now,
	}
}

// Probe checks every source, returning results in source order
func (p *Prober) Probe(ctx context.Context, sources []model.SourceConfig) []ProbeResult {
	results := make([]ProbeResult, len(sources))
	var wg sync.WaitGroup

	// Create semaphore to limit concurrent requests
	semaphore := make(chan struct{}, p.maxWorkers)

	for i, src := range sources {
		if src.Kind == model.SourceKindStore || src.URL == "" {
			results[i] = ProbeResult{SourceID: src.ID, Skipped: true}
			continue
		}

		wg.Add(1)
		go func(idx int, s model.SourceConfig) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = ProbeResult{SourceID: s.ID, URL: s.URL, Error: "context cancelled"}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = p.probeWithRetry(ctx, s)
		}(i, src)
	}

	wg.Wait()
	return results
}

// probeSingle issues a HEAD request, falling back to GET when HEAD is not allowed
func (p *Prober) probeSingle(ctx context.Context, src model.SourceConfig) ProbeResult {
	result := ProbeResult{SourceID: src.ID, URL: src.URL}
	start := p.now()

	resp, err := p.do(ctx, http.MethodHead, src.URL)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		_ = resp.Body.Close()
		resp, err = p.do(ctx, http.MethodGet, src.URL)
	}
	result.LatencyMS = p.now().Sub(start).Milliseconds()
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	result.Reachable = resp.StatusCode >= 200 && resp.StatusCode < 400

	if resp.Request.URL.String() != src.URL {
		result.RedirectURL = resp.Request.URL.String()
	}

	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		if t, err := http.ParseTime(lastModified); err == nil {
			result.LastModified = &t
			result.Stale = p.now().Sub(t) > 7*24*time.Hour
		}
	}

	return result
}

func (p *Prober) do(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	return p.httpClient.Do(req)
}

// probeWithRetry retries transient failures with exponential backoff
func (p *Prober) probeWithRetry(ctx context.Context, src model.SourceConfig) ProbeResult {
	var result ProbeResult
	for attempt := 0; attempt < probeMaxRetries; attempt++ {
		result = p.probeSingle(ctx, src)
		if !isRetryable(result) || ctx.Err() != nil {
			return result
		}
		if attempt < probeMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			probeSleepFunc(backoff)
		}
	}
	return result
}

// isRetryable returns true for results that indicate transient failures
func isRetryable(result ProbeResult) bool {
	if result.StatusCode >= 500 && result.StatusCode < 600 {
		return true
	}
	if result.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if result.Error != "" {
		return isRetryableNetworkError(result.Error)
	}
	return false
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
