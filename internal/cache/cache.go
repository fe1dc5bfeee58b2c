// Package cache holds short-lived copies of fetched source payloads.
// It sits below the aggregator at the transport layer; briefing state never lives here.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/trendbrief/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// CacheKey derives a stable key from a source kind and its locator
func CacheKey(kind model.SourceKind, locator string) string {
	hash := sha256.Sum256([]byte(string(kind) + "\x00" + locator))
	return "trendbrief:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: memory only, or memory over disk when a directory is set.
// It returns nil when caching is disabled.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.TTL, 10*time.Minute)
	}
	return NewLayeredCache(cfg.TTL, cfg.Dir, cfg.TTL)
}

// GetItems decodes a cached item list
func GetItems(c Cache, key string) ([]model.RawItem, bool) {
	data, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	var items []model.RawItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false
	}
	return items, true
}

// SetItems encodes and stores an item list
func SetItems(c Cache, key string, items []model.RawItem, ttl time.Duration) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	return c.Set(key, data, ttl)
}
