package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RawItem is a single entry as returned by a feed fetcher, before normalization
type RawItem struct {
	Title       string            `json:"title"`
	URL         string            `json:"url,omitempty"`
	MobileURL   string            `json:"mobile_url,omitempty"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	Rank        int               `json:"rank,omitempty"`    // 1-based position on the source's list, 0 if unknown
	Summary     string            `json:"summary,omitempty"` // Feed description, if any
	Extra       map[string]string `json:"extra,omitempty"`
}

// TrendItem is the normalized unit of ingested content
type TrendItem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	URL         string            `json:"url,omitempty"`
	SourceID    string            `json:"source_id"`
	SourceName  string            `json:"source_name,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
	Rank        int               `json:"rank,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// ItemID derives the stable identifier of an item from its source and URL.
// Items without a URL fall back to their title so hot lists that omit links still dedupe.
func ItemID(sourceID, url, title string) string {
	key := url
	if key == "" {
		key = "title:" + title
	}
	hash := sha256.Sum256([]byte(sourceID + "\x00" + key))
	return hex.EncodeToString(hash[:8])
}

// DedupKey is the (source_id, url) pair used to collapse duplicate items
type DedupKey struct {
	SourceID string
	URL      string
}

// Key returns the deduplication key of the item
func (t TrendItem) Key() DedupKey {
	url := t.URL
	if url == "" {
		url = "title:" + t.Title
	}
	return DedupKey{SourceID: t.SourceID, URL: url}
}

// MatchResult pairs an item with the rules it satisfied
type MatchResult struct {
	Item         TrendItem `json:"item"`
	MatchedRules []string  `json:"matched_rules"`
	Score        float64   `json:"score"`
}

// RuleStat counts how many items a rule claimed
type RuleStat struct {
	RuleID string `json:"rule_id"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
}
