// Package briefing runs the request pipeline: aggregate, match, prompt, generate, dispatch.
package briefing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/trendbrief/internal/aggregate"
	"github.com/ppiankov/trendbrief/internal/dispatch"
	"github.com/ppiankov/trendbrief/internal/feed"
	"github.com/ppiankov/trendbrief/internal/generate"
	"github.com/ppiankov/trendbrief/internal/llm"
	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/prompt"
	"github.com/ppiankov/trendbrief/internal/rules"
	"github.com/ppiankov/trendbrief/internal/worker"
)

// DefaultSentinel is returned when nothing matched and no sentinel is configured
const DefaultSentinel = "No related updates today."

// Deps are the adapters the service runs on
type Deps struct {
	Fetcher    feed.Fetcher
	Gate       *worker.Gate // Process-wide outbound fetch cap; nil creates one from configuration
	Backend    llm.Backend  // nil when no provider is configured
	Dispatcher *dispatch.Dispatcher
}

// Service executes briefings. It is safe for concurrent use; requests share only
// immutable configuration and the adapters in Deps.
type Service struct {
	cfg        *model.Config
	aggregator *aggregate.Aggregator
	backend    llm.Backend
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a service. Dispatch targets with an unknown channel kind are rejected here.
func New(cfg *model.Config, deps Deps, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, model.NewConfigurationError("", "configuration is missing")
	}
	if deps.Fetcher == nil {
		return nil, model.NewConfigurationError("sources", "no feed fetcher configured")
	}
	if err := dispatch.ValidateTargets(cfg.Dispatch.Targets); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	gate := deps.Gate
	if gate == nil {
		gate = worker.NewGate(cfg.Concurrency.MaxOutboundFetches)
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = dispatch.New(cfg.Dispatch, nil, logger)
	}

	return &Service{
		cfg:        cfg,
		aggregator: aggregate.New(deps.Fetcher, gate, cfg.Concurrency.Workers, logger),
		backend:    deps.Backend,
		dispatcher: dispatcher,
		logger:     logger.With("component", "briefing"),
		now:        time.Now,
	}, nil
}

// plan is a validated request resolved against configuration
type plan struct {
	rules    *rules.RuleSet
	sources  []model.SourceConfig
	allowed  []string
	adHoc    []string
	targets  []model.DispatchTarget
	missing  []string // Requested channels with no configured target
	unknown  []string // Allowed source ids with no configured source
	mode     string
	modelRef string
}

func (s *Service) plan(req Request) (*plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rs, err := rules.Parse(req.Rules)
	if err != nil {
		return nil, err
	}

	lookback, mode := req.window()
	p := &plan{rules: rs, allowed: req.AllowedSources, mode: mode, modelRef: req.Model}

	selected, unknown := s.selectSources(req.AllowedSources)
	p.unknown = unknown
	for _, src := range selected {
		if src.Kind == model.SourceKindStore && lookback > 0 {
			src.Lookback = lookback
		}
		p.sources = append(p.sources, src)
	}
	seen := make(map[string]bool, len(req.CustomFeedURLs))
	for _, raw := range req.CustomFeedURLs {
		src := model.CustomSource(raw)
		if seen[src.ID] {
			continue
		}
		seen[src.ID] = true
		p.sources = append(p.sources, src)
		p.adHoc = append(p.adHoc, src.ID)
	}
	if len(p.sources) == 0 && len(p.unknown) == 0 {
		return nil, model.NewConfigurationError("allowed_sources", "no sources selected")
	}

	p.targets, p.missing = s.resolveTargets(req.Channels)
	return p, nil
}

// feedIDs lists the planned sources read as RSS/Atom feeds
func (p *plan) feedIDs() map[string]bool {
	out := make(map[string]bool)
	for _, src := range p.sources {
		if src.Kind == model.SourceKindRSS {
			out[src.ID] = true
		}
	}
	return out
}

// selectSources returns the configured sources named in allowed, or all of them when allowed is nil.
// Ids matching no configured source come back in request order as unknown.
func (s *Service) selectSources(allowed []string) (selected []model.SourceConfig, unknown []string) {
	if allowed == nil {
		return append([]model.SourceConfig(nil), s.cfg.Sources...), nil
	}
	want := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		want[id] = true
	}
	known := make(map[string]bool, len(s.cfg.Sources))
	for _, src := range s.cfg.Sources {
		known[src.ID] = true
		if want[src.ID] {
			selected = append(selected, src)
		}
	}
	seen := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		if known[id] || seen[id] {
			continue
		}
		seen[id] = true
		unknown = append(unknown, id)
	}
	return selected, unknown
}

// unknownStatuses reports each unknown allowed id as a degraded source
func unknownStatuses(ids []string) []model.SourceStatus {
	out := make([]model.SourceStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.SourceStatus{
			SourceID: id,
			Name:     id,
			State:    model.SourceDegraded,
			Reason:   "unknown source",
		})
	}
	return out
}

// resolveTargets maps requested channel names onto configured targets.
// nil selects every enabled target; names without a target are returned separately.
func (s *Service) resolveTargets(channels []string) ([]model.DispatchTarget, []string) {
	all := s.cfg.Dispatch.Targets
	if channels == nil {
		var out []model.DispatchTarget
		for _, t := range all {
			if t.Enabled {
				out = append(out, t)
			}
		}
		return out, nil
	}

	var (
		out     []model.DispatchTarget
		missing []string
	)
	for _, name := range channels {
		found := false
		for _, t := range all {
			if t.Name == name {
				out = append(out, t)
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, name)
		}
	}
	return out, missing
}

// Run executes one briefing. Chunks go to sink as they are generated when sink is
// non-nil. The report is always returned; err is non-nil for hard failures, for
// generation failures and for cancellation. Partial source failure is reported
// in-band through report.Degraded.
func (s *Service) Run(ctx context.Context, req Request, sink generate.Sink) (*model.BriefingReport, error) {
	report := s.newReport()
	logger := s.logger.With("request_id", report.RequestID)
	start := s.now()
	defer func() {
		report.CompletedAt = s.now().UTC()
	}()

	p, err := s.plan(req)
	if err != nil {
		report.Status = model.StatusFailed
		logger.Info("briefing rejected", "error", err)
		return report, err
	}

	matched, err := s.collect(ctx, p, report)
	if err != nil {
		report.Status = statusFor(err)
		logger.Warn("briefing failed", "stage", "aggregate", "error", err)
		return report, err
	}

	orch := generate.New(s.backend, s.cfg.LLM.Timeout, logger)
	genStart := s.now()
	var (
		result   generate.Result
		modelRef string
	)
	if len(matched.Results) == 0 {
		result = orch.ShortCircuit(s.sentinel(), sink)
	} else {
		opts := prompt.OptionsFromConfig(s.cfg.Prompt, s.cfg.LLM)
		opts.ReportMode = p.mode
		if p.modelRef != "" {
			opts.ModelRef = p.modelRef
		}
		built, err := prompt.Build(prompt.Input{
			Results:   matched.Results,
			Stats:     matched.Stats,
			RuleNames: ruleNames(p.rules),
			FeedIDs:   p.feedIDs(),
			Now:       s.now(),
		}, opts)
		if err != nil {
			report.Status = model.StatusFailed
			logger.Warn("briefing failed", "stage", "prompt", "error", err)
			return report, err
		}
		report.Omitted = built.Omitted
		modelRef = built.Request.ModelRef
		result = orch.Run(ctx, built.Request, sink)
	}
	report.Generation = result.Report(orch.BackendName(), modelRef, s.now().Sub(genStart))

	switch result.State {
	case model.StateComplete:
	case model.StateCancelled:
		report.Status = model.StatusCancelled
		logger.Info("briefing cancelled", "chunks", result.Chunks)
		return report, cancelErr(ctx, result.Err)
	default:
		report.Status = model.StatusFailed
		logger.Warn("briefing failed", "stage", "generate", "error", result.Err)
		return report, result.Err
	}

	report.Text = result.Text
	report.Status = model.StatusOK
	if len(matched.Results) == 0 {
		report.Status = model.StatusEmpty
	}

	// Generation is done; a caller leaving now must not abort delivery
	report.Dispatch = s.dispatch(context.WithoutCancel(ctx), result.Text, p)

	logger.Info("briefing complete",
		"status", report.Status,
		"matched", report.Matched,
		"degraded", report.Degraded,
		"sent", report.Dispatch.Sent(),
		"duration", s.now().Sub(start),
	)
	return report, nil
}

// Preview is aggregation and matching without generation or dispatch
type Preview struct {
	RequestID string               `json:"request_id"`
	Matched   int                  `json:"matched"`
	Results   []model.MatchResult  `json:"results"`
	RuleStats []model.RuleStat     `json:"rule_stats"`
	Sources   []model.SourceStatus `json:"sources"`
	Degraded  bool                 `json:"degraded"`
}

// Preview runs the first two stages only
func (s *Service) Preview(ctx context.Context, req Request) (*Preview, error) {
	report := s.newReport()
	p, err := s.plan(req)
	if err != nil {
		return nil, err
	}
	matched, err := s.collect(ctx, p, report)
	if err != nil {
		return nil, err
	}

	results := matched.Results
	if results == nil {
		results = []model.MatchResult{}
	}
	return &Preview{
		RequestID: report.RequestID,
		Matched:   len(results),
		Results:   results,
		RuleStats: matched.Stats,
		Sources:   report.Sources,
		Degraded:  report.Degraded,
	}, nil
}

func (s *Service) newReport() *model.BriefingReport {
	return &model.BriefingReport{
		RequestID: uuid.NewString(),
		StartedAt: s.now().UTC(),
		Sources:   []model.SourceStatus{},
		Generation: model.GenerationReport{
			State: model.StateIdle,
		},
		Dispatch: model.DispatchReport{NoOp: true, Outcomes: []model.DispatchOutcome{}},
	}
}

// collect aggregates and matches, recording source status on report
func (s *Service) collect(ctx context.Context, p *plan, report *model.BriefingReport) (rules.Outcome, error) {
	unknown := unknownStatuses(p.unknown)
	if len(p.sources) == 0 {
		report.Sources = unknown
		report.Degraded = true
		return rules.Outcome{}, &model.AggregationFailed{Sources: unknown}
	}

	agg, err := s.aggregator.Aggregate(ctx, p.sources, s.cfg.Aggregation.Deadline)
	if err != nil {
		var failed *model.AggregationFailed
		if errors.As(err, &failed) {
			failed.Sources = append(failed.Sources, unknown...)
			report.Sources = failed.Sources
			report.Degraded = true
		}
		return rules.Outcome{}, err
	}
	report.Sources = append(agg.Sources, unknown...)
	report.Degraded = agg.Degraded || len(unknown) > 0

	outcome, err := rules.Match(p.rules, agg.Items, rules.MatchOptions{
		AllowedSources: p.allowed,
		AdHocSources:   p.adHoc,
	})
	if err != nil {
		return rules.Outcome{}, err
	}
	report.Matched = len(outcome.Results)
	report.RuleStats = outcome.Stats
	return outcome, nil
}

func (s *Service) dispatch(ctx context.Context, text string, p *plan) model.DispatchReport {
	rep := s.dispatcher.Dispatch(ctx, text, p.targets)
	if len(p.missing) == 0 {
		return rep
	}
	for _, name := range p.missing {
		rep.Outcomes = append(rep.Outcomes, model.DispatchOutcome{
			Target: name,
			Status: model.DispatchSkipped,
			Reason: "not-configured",
		})
	}
	rep.NoOp = false
	return rep
}

func (s *Service) sentinel() string {
	if s.cfg.Briefing.EmptySentinel != "" {
		return s.cfg.Briefing.EmptySentinel
	}
	return DefaultSentinel
}

func ruleNames(rs *rules.RuleSet) map[string]string {
	names := make(map[string]string, len(rs.Rules))
	for _, r := range rs.Rules {
		names[r.ID] = r.Name
	}
	return names
}

func statusFor(err error) model.BriefingStatus {
	if errors.Is(err, context.Canceled) {
		return model.StatusCancelled
	}
	return model.StatusFailed
}

// cancelErr prefers the caller's context error over a sink error
func cancelErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return context.Canceled
	}
	return err
}
