package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/trendbrief/internal/cache"
	"github.com/ppiankov/trendbrief/internal/model"
)

// CachedFetcher serves repeated fetches of the same source from a short-lived cache.
// Only successful results are stored; archive sources bypass the cache.
type CachedFetcher struct {
	next   Fetcher
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedFetcher wraps next. A nil cache returns next unchanged.
func NewCachedFetcher(next Fetcher, c cache.Cache, ttl time.Duration, logger *slog.Logger) Fetcher {
	if c == nil {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher{next: next, cache: c, ttl: ttl, logger: logger}
}

// Fetch implements Fetcher
func (f *CachedFetcher) Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error) {
	if src.Kind == model.SourceKindStore {
		return f.next.Fetch(ctx, src)
	}

	key := cache.CacheKey(src.Kind, src.URL+"\x00"+src.ItemSelector+"\x00"+src.TitleAttr)
	if items, ok := cache.GetItems(f.cache, key); ok {
		f.logger.Debug("fetch cache hit", "source", src.ID, "items", len(items))
		return items, nil
	}

	items, err := f.next.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if err := cache.SetItems(f.cache, key, items, f.ttl); err != nil {
		f.logger.Warn("fetch cache write failed", "source", src.ID, "error", err)
	}
	return items, nil
}
