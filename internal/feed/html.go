package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/trendbrief/internal/model"
)

// HTMLFetcher scrapes hot lists out of plain web pages with a CSS selector
type HTMLFetcher struct {
	client *Client
}

// NewHTMLFetcher creates a selector-driven fetcher
func NewHTMLFetcher(client *Client) *HTMLFetcher {
	return &HTMLFetcher{client: client}
}

// Fetch implements Fetcher. Each node matched by src.ItemSelector becomes one item.
func (f *HTMLFetcher) Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error) {
	if src.ItemSelector == "" {
		return nil, model.NewConfigurationError("sources."+src.ID+".item_selector", "required for html sources")
	}

	resp, err := f.client.Get(ctx, Request{
		URL:         src.URL,
		Accept:      "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8",
		CheckRobots: src.AdHoc,
	})
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(resp.FinalURL)
	if err != nil {
		base, _ = url.Parse(src.URL)
	}
	return parseHTMLList(resp.Body, base, src.ItemSelector, src.TitleAttr)
}

func parseHTMLList(body []byte, base *url.URL, selector, titleAttr string) ([]model.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var items []model.RawItem
	seen := make(map[string]struct{})

	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		title := ""
		if titleAttr != "" {
			title, _ = sel.Attr(titleAttr)
		}
		if title == "" {
			title = sel.Text()
		}
		title = strings.Join(strings.Fields(title), " ")
		if title == "" {
			return
		}

		link := sel
		if goquery.NodeName(sel) != "a" {
			link = sel.Find("a[href]").First()
		}
		href, _ := link.Attr("href")
		href = resolveURL(base, href)

		key := href
		if key == "" {
			key = "title:" + title
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		items = append(items, model.RawItem{
			Title: title,
			URL:   href,
			Rank:  len(items) + 1,
		})
	})

	return items, nil
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
