// Package feed fetches raw items from external sources and maps them onto model.RawItem.
package feed

import (
	"context"
	"fmt"

	"github.com/ppiankov/trendbrief/internal/model"
)

// Fetcher retrieves the current items of one source.
// Deadlines come from ctx; implementations must return promptly once it is done.
type Fetcher interface {
	Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error)
}

// FetcherFunc adapts a function into a Fetcher
type FetcherFunc func(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error)

// Fetch calls f
func (f FetcherFunc) Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error) {
	return f(ctx, src)
}

// Registry routes a source to the fetcher registered for its kind
type Registry struct {
	fetchers map[model.SourceKind]Fetcher
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[model.SourceKind]Fetcher)}
}

// Register binds kind to f, replacing any previous binding
func (r *Registry) Register(kind model.SourceKind, f Fetcher) {
	r.fetchers[kind] = f
}

// Has reports whether kind has a fetcher
func (r *Registry) Has(kind model.SourceKind) bool {
	_, ok := r.fetchers[kind]
	return ok
}

// Fetch implements Fetcher
func (r *Registry) Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error) {
	f, ok := r.fetchers[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no fetcher for source kind %q", src.Kind)
	}
	items, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if src.MaxItems > 0 && len(items) > src.MaxItems {
		items = items[:src.MaxItems]
	}
	return items, nil
}
