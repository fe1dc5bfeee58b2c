// Package prompt turns ranked match results into a generation request.
package prompt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/trendbrief/internal/model"
)

// TimeLayout formats {current_time}
const TimeLayout = "2006-01-02 15:04:05"

const maxKeywords = 20

// DefaultTemplate is used when no template is configured
const DefaultTemplate = `Write a {report_type} ({report_mode}) in {language}.

Generated at: {current_time}
Platforms: {platforms}
Tracked keywords: {keywords}
Matched headlines: {news_count} ({omitted_count} omitted for length)

Headlines grouped by keyword, highest ranked first:

{news_content}

Instructions:
1. Summarize the main developments for each keyword group in a few sentences.
2. Call out stories that appear on several platforms.
3. Use only the headlines above. Do not invent facts, numbers or links.
4. Finish with a short list of items worth following up.`

// Options configures how a prompt is rendered
type Options struct {
	Template     string
	MaxChars     int // Budget for the rendered user prompt in characters; 0 disables it
	Language     string
	ReportType   string
	ReportMode   string
	SystemPrompt string
	MaxTokens    int
	ModelRef     string
	Temperature  float32
}

// OptionsFromConfig builds Options from the prompt and LLM configuration
func OptionsFromConfig(p model.PromptConfig, l model.LLMConfig) Options {
	return Options{
		Template:     p.Template,
		MaxChars:     p.MaxChars,
		Language:     p.Language,
		ReportType:   p.ReportType,
		ReportMode:   "daily",
		SystemPrompt: l.SystemPrompt,
		MaxTokens:    l.MaxTokens,
		ModelRef:     l.Model,
		Temperature:  l.Temperature,
	}
}

// Input is everything the prompt is rendered from
type Input struct {
	Results   []model.MatchResult // Ranked, best first
	Stats     []model.RuleStat
	RuleNames map[string]string // Rule id to display name
	FeedIDs   map[string]bool   // Sources that are RSS/Atom feeds, counted by {rss_count}
	Now       time.Time
}

// Built is a rendered request and how many results made it in
type Built struct {
	Request  model.GenerationRequest
	Included int
	Omitted  int
}

// Build renders the prompt. When the results do not fit in MaxChars the lowest ranked
// ones are left out and counted. It is a pure function of its arguments.
func Build(in Input, opts Options) (Built, error) {
	if len(in.Results) == 0 {
		return Built{}, model.NewConfigurationError("prompt", "no match results to build a prompt from")
	}
	tmpl := opts.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	if !strings.Contains(tmpl, "{news_content}") {
		return Built{}, model.NewConfigurationError("prompt.template", "template must contain {news_content}")
	}

	render := func(n int) string {
		return renderPrompt(tmpl, in, opts, n)
	}

	n := len(in.Results)
	if opts.MaxChars > 0 && charLen(render(n)) > opts.MaxChars {
		// Rendered length grows with n; find the largest n that fits
		lo, hi := 0, n-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if charLen(render(mid)) <= opts.MaxChars {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		n = lo
		if n == 0 || charLen(render(n)) > opts.MaxChars {
			return Built{}, model.NewConfigurationError("prompt.max_chars", "budget of %d characters cannot hold a single item", opts.MaxChars)
		}
	}

	return Built{
		Request: model.GenerationRequest{
			SystemPrompt: opts.SystemPrompt,
			PromptText:   render(n),
			MaxTokens:    opts.MaxTokens,
			ModelRef:     opts.ModelRef,
			Temperature:  opts.Temperature,
		},
		Included: n,
		Omitted:  len(in.Results) - n,
	}, nil
}

func renderPrompt(tmpl string, in Input, opts Options, n int) string {
	included := in.Results[:n]
	replacer := strings.NewReplacer(
		"{report_mode}", orDefault(opts.ReportMode, "daily"),
		"{report_type}", orDefault(opts.ReportType, "briefing"),
		"{current_time}", in.Now.Format(TimeLayout),
		"{news_count}", strconv.Itoa(n),
		"{omitted_count}", strconv.Itoa(len(in.Results)-n),
		"{rss_count}", strconv.Itoa(feedCount(included, in.FeedIDs)),
		"{platforms}", orDefault(strings.Join(Platforms(included), ", "), "multiple platforms"),
		"{keywords}", orDefault(strings.Join(Keywords(in.Stats), ", "), "none"),
		"{language}", orDefault(opts.Language, "English"),
		"{news_content}", NewsContent(included, in.RuleNames),
	)
	return replacer.Replace(tmpl)
}

func feedCount(results []model.MatchResult, feeds map[string]bool) int {
	n := 0
	for _, r := range results {
		if feeds[r.Item.SourceID] {
			n++
		}
	}
	return n
}

// Keywords returns the names of rules that claimed items, busiest first, capped at 20
func Keywords(stats []model.RuleStat) []string {
	hit := make([]model.RuleStat, 0, len(stats))
	for _, s := range stats {
		if s.Count > 0 {
			hit = append(hit, s)
		}
	}
	sort.SliceStable(hit, func(i, j int) bool { return hit[i].Count > hit[j].Count })

	out := make([]string, 0, len(hit))
	for i, s := range hit {
		if i >= maxKeywords {
			out = append(out, fmt.Sprintf("... and %d more", len(hit)-maxKeywords))
			break
		}
		out = append(out, s.Name)
	}
	return out
}

// Platforms lists distinct source names in order of first appearance
func Platforms(results []model.MatchResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		name := r.Item.SourceName
		if name == "" {
			name = r.Item.SourceID
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// NewsContent renders results grouped under their first matched rule.
// Groups appear in the order their best item ranks; items keep their rank within a group.
func NewsContent(results []model.MatchResult, ruleNames map[string]string) string {
	var order []string
	groups := make(map[string][]model.MatchResult)
	for _, r := range results {
		key := ""
		if len(r.MatchedRules) > 0 {
			key = r.MatchedRules[0]
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var b strings.Builder
	for gi, key := range order {
		if gi > 0 {
			b.WriteString("\n")
		}
		name := ruleNames[key]
		if name == "" {
			name = key
		}
		fmt.Fprintf(&b, "## %s (%d)\n", name, len(groups[key]))
		for i, r := range groups[key] {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, sourceLabel(r.Item), r.Item.Title)
			if !r.Item.PublishedAt.IsZero() {
				fmt.Fprintf(&b, " (%s)", r.Item.PublishedAt.UTC().Format("01-02 15:04"))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func sourceLabel(item model.TrendItem) string {
	if item.SourceName != "" {
		return item.SourceName
	}
	return item.SourceID
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
