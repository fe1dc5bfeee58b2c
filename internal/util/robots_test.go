package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsChecker_CanFetch(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&hits, 1)
			_, _ = w.Write([]byte("User-agent: trendbrief\nDisallow: /private\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	checker := NewRobotsChecker(ts.Client(), "trendbrief/0.1 (+https://example.com)")
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, ts.URL+"/feed.xml")
	if err != nil {
		t.Fatal(err)
	}
	if !allowed {
		t.Error("expected /feed.xml to be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("expected crawl delay 2s, got %v", delay)
	}

	if checker.IsAllowed(ctx, ts.URL+"/private/feed.xml") {
		t.Error("expected /private to be disallowed")
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected robots.txt fetched once, got %d", n)
	}
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	checker := NewRobotsChecker(ts.Client(), "trendbrief")
	if !checker.IsAllowed(context.Background(), ts.URL+"/anything") {
		t.Error("expected fetch to be allowed without robots.txt")
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	cases := map[string]string{
		"trendbrief/0.1 (+https://x)": "trendbrief",
		"curl":                        "curl",
		"":                            "",
	}
	for in, want := range cases {
		if got := NormalizeUserAgent(in); got != want {
			t.Errorf("NormalizeUserAgent(%q) = %q, want %q", in, got, want)
		}
	}
}
