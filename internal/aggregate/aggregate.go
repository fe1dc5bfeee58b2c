// Package aggregate fetches every selected source concurrently and merges the results.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/trendbrief/internal/feed"
	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/worker"
)

const reasonDeadline = "deadline exceeded"

// Result is the merged output of one aggregation
type Result struct {
	Items    []model.TrendItem
	Sources  []model.SourceStatus // In the order the sources were requested
	Degraded bool
}

// Aggregator runs per-request fetches. It holds no request state; the gate is the
// only thing shared between concurrent calls.
type Aggregator struct {
	fetcher feed.Fetcher
	gate    *worker.Gate
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an aggregator. workers bounds fetch parallelism within one request,
// gate bounds it across all requests.
func New(fetcher feed.Fetcher, gate *worker.Gate, workers int, logger *slog.Logger) *Aggregator {
	if gate == nil {
		gate = worker.NewGate(workers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		fetcher: fetcher,
		gate:    gate,
		workers: workers,
		logger:  logger.With("component", "aggregate"),
		now:     time.Now,
	}
}

type fetchJob struct {
	src     model.SourceConfig
	fetcher feed.Fetcher
	gate    *worker.Gate
	now     func() time.Time
}

type fetchResult struct {
	src       model.SourceConfig
	items     []model.RawItem
	err       error
	duration  time.Duration
	fetchedAt time.Time
}

func (r *fetchResult) GetError() error {
	return r.err
}

func (j *fetchJob) Execute(ctx context.Context) (res worker.Result) {
	start := j.now()
	result := &fetchResult{src: j.src}
	defer func() {
		if p := recover(); p != nil {
			result.items = nil
			result.err = fmt.Errorf("fetcher panic: %v", p)
		}
		result.fetchedAt = j.now()
		result.duration = result.fetchedAt.Sub(start)
		res = result
	}()

	result.err = j.gate.Do(ctx, func(ctx context.Context) error {
		items, err := j.fetcher.Fetch(ctx, j.src)
		if err != nil {
			return err
		}
		result.items = items
		return nil
	})
	return result
}

// Aggregate fetches sources concurrently until every source reports or deadline elapses.
// Sources still in flight at the deadline are cancelled and marked DEGRADED. Caller
// cancellation returns ctx.Err(). If no source succeeds the error is *model.AggregationFailed.
func (a *Aggregator) Aggregate(ctx context.Context, sources []model.SourceConfig, deadline time.Duration) (*Result, error) {
	if len(sources) == 0 {
		return nil, model.NewConfigurationError("sources", "no sources selected")
	}

	fetchCtx := ctx
	cancel := func() {}
	if deadline > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, deadline)
	}
	defer cancel()

	workers := a.workers
	if workers <= 0 || workers > len(sources) {
		workers = len(sources)
	}
	pool := worker.NewPool(fetchCtx, workers)
	pool.Start()
	for _, src := range sources {
		pool.Submit(&fetchJob{src: src, fetcher: a.fetcher, gate: a.gate, now: a.now})
	}

	var results []worker.Result
	select {
	case <-pool.Done():
		results = pool.Snapshot()
	case <-fetchCtx.Done():
		results = pool.Snapshot()
		go pool.Shutdown()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return a.merge(sources, results)
}

func (a *Aggregator) merge(sources []model.SourceConfig, results []worker.Result) (*Result, error) {
	byID := make(map[string]*fetchResult, len(results))
	var items []model.TrendItem

	for _, r := range results {
		fr, ok := r.(*fetchResult)
		if !ok {
			continue
		}
		byID[fr.src.ID] = fr
		if fr.err == nil {
			items = append(items, Normalize(fr.src, fr.items, fr.fetchedAt)...)
		}
	}

	out := &Result{Sources: make([]model.SourceStatus, 0, len(sources))}
	ok := 0
	for _, src := range sources {
		status := model.SourceStatus{SourceID: src.ID, Name: src.DisplayName(), State: model.SourceOK}
		fr, reported := byID[src.ID]
		switch {
		case !reported:
			status.State = model.SourceDegraded
			status.Reason = reasonDeadline
		case fr.err != nil:
			status.State = model.SourceDegraded
			status.Reason = failureReason(fr.err)
			status.DurationMS = fr.duration.Milliseconds()
		default:
			status.Items = len(fr.items)
			status.DurationMS = fr.duration.Milliseconds()
			ok++
		}
		if status.State == model.SourceDegraded {
			out.Degraded = true
			var cause error = errors.New(status.Reason)
			if reported && fr.err != nil {
				cause = fr.err
			}
			a.logger.Warn("source degraded", "error", &model.SourceUnavailable{SourceID: src.ID, Err: cause})
		}
		out.Sources = append(out.Sources, status)
	}

	if ok == 0 {
		return nil, &model.AggregationFailed{Sources: out.Sources}
	}

	out.Items = Dedup(items)
	a.logger.Debug("aggregation complete", "sources", len(sources), "ok", ok, "items", len(out.Items))
	return out, nil
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return reasonDeadline
	}
	return err.Error()
}

// Normalize maps raw items from one source onto TrendItems. Items without a
// publish time take fetchedAt, the moment the list was observed.
func Normalize(src model.SourceConfig, raw []model.RawItem, fetchedAt time.Time) []model.TrendItem {
	out := make([]model.TrendItem, 0, len(raw))
	for _, r := range raw {
		if r.Title == "" {
			continue
		}
		url := r.URL
		if url == "" {
			url = r.MobileURL
		}
		published := r.PublishedAt
		if published.IsZero() {
			published = fetchedAt
		}

		var extra map[string]string
		if len(r.Extra) > 0 || r.Summary != "" || (r.MobileURL != "" && r.MobileURL != url) {
			extra = make(map[string]string, len(r.Extra)+2)
			for k, v := range r.Extra {
				extra[k] = v
			}
			if r.Summary != "" {
				extra["summary"] = r.Summary
			}
			if r.MobileURL != "" && r.MobileURL != url {
				extra["mobile_url"] = r.MobileURL
			}
		}

		out = append(out, model.TrendItem{
			ID:          model.ItemID(src.ID, url, r.Title),
			Title:       r.Title,
			URL:         url,
			SourceID:    src.ID,
			SourceName:  src.DisplayName(),
			PublishedAt: published.UTC(),
			Rank:        r.Rank,
			Extra:       extra,
		})
	}
	return out
}

// Dedup collapses items sharing (source_id, url). The newer published_at wins and
// takes the position of the first occurrence; ties keep the first seen.
func Dedup(items []model.TrendItem) []model.TrendItem {
	out := make([]model.TrendItem, 0, len(items))
	index := make(map[model.DedupKey]int, len(items))
	for _, it := range items {
		key := it.Key()
		if i, seen := index[key]; seen {
			if it.PublishedAt.After(out[i].PublishedAt) {
				out[i] = it
			}
			continue
		}
		index[key] = len(out)
		out = append(out, it)
	}
	return out
}
