package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/trendbrief/internal/model"
)

// NewsNowFetcher reads hot lists from a NewsNow-compatible JSON API
type NewsNowFetcher struct {
	client *Client
}

// NewNewsNowFetcher creates a hot-list fetcher
func NewNewsNowFetcher(client *Client) *NewsNowFetcher {
	return &NewsNowFetcher{client: client}
}

type newsNowResponse struct {
	Status string        `json:"status"`
	ID     string        `json:"id"`
	Items  []newsNowItem `json:"items"`
}

type newsNowItem struct {
	ID        any            `json:"id"`
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	MobileURL string         `json:"mobileUrl"`
	PubDate   any            `json:"pubDate"`
	Extra     map[string]any `json:"extra"`
}

// Fetch implements Fetcher. Position in the list becomes the rank.
func (f *NewsNowFetcher) Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error) {
	resp, err := f.client.Get(ctx, Request{URL: src.URL, Accept: "application/json", CheckRobots: src.AdHoc})
	if err != nil {
		return nil, err
	}
	return parseNewsNow(resp.Body)
}

func parseNewsNow(body []byte) ([]model.RawItem, error) {
	var payload newsNowResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode hot list: %w", err)
	}
	switch payload.Status {
	case "success", "cache", "":
	default:
		return nil, fmt.Errorf("hot list status %q", payload.Status)
	}

	items := make([]model.RawItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		item := model.RawItem{
			Title:     title,
			URL:       it.URL,
			MobileURL: it.MobileURL,
			Rank:      len(items) + 1,
		}
		if ts, ok := parseAnyTime(it.PubDate); ok {
			item.PublishedAt = ts
		}
		if len(it.Extra) > 0 {
			item.Extra = flattenExtra(it.Extra)
		}
		items = append(items, item)
	}
	return items, nil
}

// flattenExtra keeps scalar values and drops nested structures
func flattenExtra(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			if val != "" {
				out[k] = val
			}
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
