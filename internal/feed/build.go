package feed

import (
	"context"
	"log/slog"

	"github.com/ppiankov/trendbrief/internal/cache"
	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/worker"
)

// Build wires the fetchers for every source kind from cfg.
// The archive connection is only opened when a store source is configured.
// The returned cleanup func releases it.
func Build(ctx context.Context, cfg *model.Config, logger *slog.Logger) (*Registry, func(), error) {
	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	client := NewClient(cfg.HTTP, limiter)
	c := cache.New(cfg.Cache)

	registry := NewRegistry()
	registry.Register(model.SourceKindNewsNow, NewCachedFetcher(NewNewsNowFetcher(client), c, cfg.Cache.TTL, logger))
	registry.Register(model.SourceKindRSS, NewCachedFetcher(NewRSSFetcher(client), c, cfg.Cache.TTL, logger))
	registry.Register(model.SourceKindHTML, NewCachedFetcher(NewHTMLFetcher(client), c, cfg.Cache.TTL, logger))

	cleanup := func() {}
	if usesStore(cfg.Sources) {
		store, err := OpenStore(ctx, cfg.Store, cfg.Aggregation.Lookback)
		if err != nil {
			return nil, cleanup, err
		}
		registry.Register(model.SourceKindStore, store)
		cleanup = store.Close
	}

	return registry, cleanup, nil
}

func usesStore(sources []model.SourceConfig) bool {
	for _, s := range sources {
		if s.Kind == model.SourceKindStore {
			return true
		}
	}
	return false
}
