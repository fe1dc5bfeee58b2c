package feed

import (
	"context"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ppiankov/trendbrief/internal/model"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

const defaultStoreLimit = 200

// Querier is the subset of pgxpool.Pool the archive reader needs
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// StoreFetcher reads previously crawled items for a source from the Postgres archive.
// Titles seen several times inside the lookback window collapse into one item
// carrying their best rank and latest timestamp.
type StoreFetcher struct {
	db       Querier
	pool     *pgxpool.Pool
	table    string
	lookback time.Duration
	now      func() time.Time
}

// NewStoreFetcher wraps an existing querier
func NewStoreFetcher(db Querier, table string, lookback time.Duration) (*StoreFetcher, error) {
	if table == "" {
		table = "trend_items"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, model.NewConfigurationError("store.table", "invalid table name %q", table)
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &StoreFetcher{
		db:       db,
		table:    table,
		lookback: lookback,
		now:      time.Now,
	}, nil
}

// OpenStore connects to the archive described by cfg and verifies the connection
func OpenStore(ctx context.Context, cfg model.StoreConfig, lookback time.Duration) (*StoreFetcher, error) {
	if cfg.DSN == "" {
		return nil, model.NewConfigurationError("store.dsn", "required when store sources are configured")
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping archive: %w", err)
	}

	f, err := NewStoreFetcher(pool, cfg.Table, lookback)
	if err != nil {
		pool.Close()
		return nil, err
	}
	f.pool = pool
	return f, nil
}

// Close releases the connection pool if this fetcher opened it
func (f *StoreFetcher) Close() {
	if f.pool != nil {
		f.pool.Close()
	}
}

// Fetch implements Fetcher
func (f *StoreFetcher) Fetch(ctx context.Context, src model.SourceConfig) ([]model.RawItem, error) {
	query, args, err := f.buildQuery(src)
	if err != nil {
		return nil, fmt.Errorf("build archive query: %w", err)
	}

	rows, err := f.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	var items []model.RawItem
	for rows.Next() {
		var (
			title, url, mobileURL string
			rank                  int
			publishedAt           time.Time
		)
		if err := rows.Scan(&title, &url, &mobileURL, &rank, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		items = append(items, model.RawItem{
			Title:       title,
			URL:         url,
			MobileURL:   mobileURL,
			Rank:        rank,
			PublishedAt: publishedAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return items, nil
}

func (f *StoreFetcher) buildQuery(src model.SourceConfig) (string, []any, error) {
	limit := src.MaxItems
	if limit <= 0 {
		limit = defaultStoreLimit
	}

	archiveID := src.ID
	if src.URL != "" {
		archiveID = src.URL
	}

	lookback := f.lookback
	if src.Lookback > 0 {
		lookback = src.Lookback
	}

	return sq.Select(
		"title",
		"COALESCE(MAX(url), '')",
		"COALESCE(MAX(mobile_url), '')",
		"MIN(rank)",
		"MAX(published_at)",
	).
		From(f.table).
		Where(sq.Eq{"source_id": archiveID}).
		Where(sq.GtOrEq{"published_at": f.now().Add(-lookback)}).
		GroupBy("title").
		OrderBy("MIN(rank) ASC", "MAX(published_at) DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}
