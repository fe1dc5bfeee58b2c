package rules

import (
	"sort"

	"github.com/ppiankov/trendbrief/internal/model"
)

// MatchOptions narrows the candidate items
type MatchOptions struct {
	// AllowedSources keeps only items from these sources when non-nil.
	// Items from ad-hoc feeds (AdHocSources) are always kept.
	AllowedSources []string
	AdHocSources   []string
}

// Outcome is the ordered match result plus per-rule hit counts
type Outcome struct {
	Results []model.MatchResult
	Stats   []model.RuleStat
}

// Match filters and ranks items against the rule set.
// It does not modify its inputs and returns the same outcome for the same arguments.
func Match(rs *RuleSet, items []model.TrendItem, opts MatchOptions) (Outcome, error) {
	if rs == nil || len(rs.Rules) == 0 {
		return Outcome{}, model.NewConfigurationError("rules", "rule set contains no keyword groups")
	}

	allowed := sourceFilter(opts)
	seen := make(map[string]struct{}, len(items))
	candidates := make([]model.MatchResult, 0)

	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}

		if allowed != nil {
			if _, ok := allowed[item.SourceID]; !ok {
				continue
			}
		}

		norm := paddedTitle(item.Title)
		if anyMatch(rs.Filters, item.Title, norm) {
			continue
		}

		var matched []string
		for _, rule := range rs.Rules {
			if rule.matches(item.Title, norm) {
				matched = append(matched, rule.ID)
			}
		}
		if len(matched) == 0 {
			continue
		}
		candidates = append(candidates, model.MatchResult{
			Item:         item,
			MatchedRules: matched,
			Score:        rs.score(matched),
		})
	}

	sortResults(candidates)
	results := rs.claim(candidates)
	sortResults(results)

	return Outcome{Results: results, Stats: rs.stats(results)}, nil
}

// claim applies per-rule max_items in ranked order, dropping items whose rules are all exhausted
func (rs *RuleSet) claim(ranked []model.MatchResult) []model.MatchResult {
	limits := make(map[string]int, len(rs.Rules))
	for _, r := range rs.Rules {
		if r.MaxItems > 0 {
			limits[r.ID] = r.MaxItems
		}
	}

	used := make(map[string]int, len(limits))
	out := make([]model.MatchResult, 0, len(ranked))
	for _, res := range ranked {
		kept := make([]string, 0, len(res.MatchedRules))
		for _, id := range res.MatchedRules {
			if limit, ok := limits[id]; ok && used[id] >= limit {
				continue
			}
			used[id]++
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			continue
		}
		res.MatchedRules = kept
		res.Score = rs.score(kept)
		out = append(out, res)
	}
	return out
}

func (rs *RuleSet) score(ids []string) float64 {
	var total float64
	for _, id := range ids {
		if r, ok := rs.Rule(id); ok {
			total += r.Weight
		}
	}
	return total
}

func (rs *RuleSet) stats(results []model.MatchResult) []model.RuleStat {
	counts := make(map[string]int, len(rs.Rules))
	for _, res := range results {
		for _, id := range res.MatchedRules {
			counts[id]++
		}
	}
	stats := make([]model.RuleStat, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		stats = append(stats, model.RuleStat{RuleID: r.ID, Name: r.Name, Count: counts[r.ID]})
	}
	return stats
}

func (r Rule) matches(raw, norm string) bool {
	for _, t := range r.Required {
		if !t.matches(raw, norm) {
			return false
		}
	}
	if len(r.Terms) == 0 {
		return len(r.Required) > 0
	}
	if r.Mode == ModeAll {
		for _, t := range r.Terms {
			if !t.matches(raw, norm) {
				return false
			}
		}
		return true
	}
	return anyMatch(r.Terms, raw, norm)
}

func anyMatch(terms []Term, raw, norm string) bool {
	for _, t := range terms {
		if t.matches(raw, norm) {
			return true
		}
	}
	return false
}

func sourceFilter(opts MatchOptions) map[string]struct{} {
	if opts.AllowedSources == nil {
		return nil
	}
	allowed := make(map[string]struct{}, len(opts.AllowedSources)+len(opts.AdHocSources))
	for _, id := range opts.AllowedSources {
		allowed[id] = struct{}{}
	}
	for _, id := range opts.AdHocSources {
		allowed[id] = struct{}{}
	}
	return allowed
}

// sortResults orders by score desc, then published_at desc, then id asc
func sortResults(results []model.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Item.PublishedAt.Equal(b.Item.PublishedAt) {
			return a.Item.PublishedAt.After(b.Item.PublishedAt)
		}
		return a.Item.ID < b.Item.ID
	})
}
