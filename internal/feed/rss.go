package feed

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/ppiankov/trendbrief/internal/model"
)

// RSSFetcher reads RSS 2.0, RSS 1.0 (RDF), Atom and JSON feeds
type RSSFetcher struct {
	client *Client
}

// NewRSSFetcher creates a feed fetcher
func NewRSSFetcher(client *Client) *RSSFetcher {
	return &RSSFetcher{client: client}
}

// Fetch implements Fetcher
func (f *RSSFetcher) Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error) {
	resp, err := f.client.Get(ctx, Request{
		URL:         src.URL,
		Accept:      "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8",
		CheckRobots: src.AdHoc,
	})
	if err != nil {
		return nil, err
	}
	return parseFeed(resp.Body)
}

func parseFeed(body []byte) ([]model.RawItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var items []model.RawItem
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		item := model.RawItem{
			Title:   cleanText(it.Title),
			URL:     itemLink(it),
			Summary: cleanText(it.Description),
		}
		if item.Summary == "" {
			item.Summary = cleanText(it.Content)
		}
		switch {
		case it.PublishedParsed != nil:
			item.PublishedAt = it.PublishedParsed.UTC()
		case it.UpdatedParsed != nil:
			item.PublishedAt = it.UpdatedParsed.UTC()
		default:
			if ts, ok := parseTime(it.Published); ok {
				item.PublishedAt = ts
			} else if ts, ok := parseTime(it.Updated); ok {
				item.PublishedAt = ts
			}
		}
		items = appendRanked(items, item)
	}
	return items, nil
}

func appendRanked(items []model.RawItem, item model.RawItem) []model.RawItem {
	if item.Title == "" {
		return items
	}
	item.Rank = len(items) + 1
	return append(items, item)
}

// itemLink prefers the item link, then any extra link, then a permalink guid
func itemLink(it *gofeed.Item) string {
	if link := strings.TrimSpace(it.Link); link != "" {
		return link
	}
	for _, l := range it.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	if guid := strings.TrimSpace(it.GUID); strings.HasPrefix(guid, "http") {
		return guid
	}
	return ""
}

// cleanText reduces feed text to plain words; summaries may carry markup
func cleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
