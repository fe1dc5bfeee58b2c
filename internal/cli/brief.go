package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trendbrief/internal/briefing"
	"github.com/ppiankov/trendbrief/internal/generate"
	"github.com/ppiankov/trendbrief/internal/model"
	"github.com/ppiankov/trendbrief/internal/worker"
)

var (
	briefRules      []string
	briefRulesFile  string
	briefSources    []string
	briefFeeds      []string
	briefFeedsFile  string
	briefChannels   []string
	briefNoDispatch bool
	briefModel      string
	briefRange      string
	briefJSON       string
	briefPreview    bool
	briefTimeout    time.Duration
)

// briefCmd represents the brief command
var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Run one briefing and stream it to stdout",
	Long: `Brief runs the full pipeline once:
- Fetch every selected source and ad-hoc feed concurrently
- Keep items matching the keyword rules
- Stream a generated briefing to stdout
- Deliver the finished text to the configured channels

Each --rule is one keyword group; a rules file holds groups separated by blank lines.

Example:
  trendbrief brief --rule "AI\n+model" --rule "bitcoin"
  trendbrief brief --rules-file rules.txt --source weibo --source hackernews
  trendbrief brief --rules-file rules.txt --feeds-file feeds.txt --no-dispatch --json report.json
  trendbrief brief --rules-file rules.txt --preview`,
	RunE: runBrief,
}

func init() {
	rootCmd.AddCommand(briefCmd)

	// Rule flags
	briefCmd.Flags().StringArrayVar(&briefRules, "rule", nil, "keyword group (repeatable, \\n separates lines)")
	briefCmd.Flags().StringVar(&briefRulesFile, "rules-file", "", "file with keyword groups separated by blank lines")

	// Source flags
	briefCmd.Flags().StringSliceVar(&briefSources, "source", nil, "configured source id to use (repeatable, default all)")
	briefCmd.Flags().StringSliceVar(&briefFeeds, "feed", nil, "ad-hoc RSS/Atom feed URL (repeatable)")
	briefCmd.Flags().StringVar(&briefFeedsFile, "feeds-file", "", "file with one ad-hoc feed URL per line")
	briefCmd.Flags().StringVar(&briefRange, "range", "", "archive window: daily, weekly or monthly")

	// Output flags
	briefCmd.Flags().StringSliceVar(&briefChannels, "channel", nil, "dispatch target name (repeatable, default all enabled)")
	briefCmd.Flags().BoolVar(&briefNoDispatch, "no-dispatch", false, "do not deliver to any channel")
	briefCmd.Flags().StringVar(&briefModel, "model", "", "model override for this run")
	briefCmd.Flags().StringVar(&briefJSON, "json", "", "write the report as JSON to this path")
	briefCmd.Flags().BoolVar(&briefPreview, "preview", false, "aggregate and match only, print the matched items")
	briefCmd.Flags().DurationVar(&briefTimeout, "timeout", 5*time.Minute, "overall timeout")
}

// buildRequest assembles a briefing request from the command flags
func buildRequest() (briefing.Request, error) {
	req := briefing.Request{
		Model:     briefModel,
		DateRange: briefRange,
	}

	for _, r := range briefRules {
		req.Rules = append(req.Rules, strings.ReplaceAll(r, `\n`, "\n"))
	}
	if briefRulesFile != "" {
		data, err := os.ReadFile(briefRulesFile)
		if err != nil {
			return req, fmt.Errorf("read rules file: %w", err)
		}
		req.Rules = append(req.Rules, string(data))
	}

	if len(briefSources) > 0 {
		req.AllowedSources = briefSources
	}
	req.CustomFeedURLs = append(req.CustomFeedURLs, briefFeeds...)
	if briefFeedsFile != "" {
		urls, err := worker.ReadLinesFromFile(briefFeedsFile)
		if err != nil {
			return req, fmt.Errorf("read feeds file: %w", err)
		}
		req.CustomFeedURLs = append(req.CustomFeedURLs, urls...)
	}

	switch {
	case briefNoDispatch:
		req.Channels = []string{}
	case len(briefChannels) > 0:
		req.Channels = briefChannels
	}
	return req, nil
}

func runBrief(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), briefTimeout)
	defer cancel()

	svc, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if briefPreview {
		preview, err := svc.Preview(ctx, req)
		if err != nil {
			return err
		}
		printSources(preview.Sources)
		for i, r := range preview.Results {
			fmt.Printf("%3d. [%s] %s (score %.1f)\n", i+1, r.Item.SourceName, r.Item.Title, r.Score)
		}
		return nil
	}

	out := cmd.OutOrStdout()
	var sink generate.Sink = func(chunk model.StreamChunk) error {
		if chunk.Done {
			_, err := fmt.Fprintln(out)
			return err
		}
		_, err := fmt.Fprint(out, chunk.Text)
		return err
	}

	report, runErr := svc.Run(ctx, req, sink)
	if report != nil {
		printSources(report.Sources)
		printDispatch(report.Dispatch)
		if briefJSON != "" {
			if err := writeReport(report, briefJSON); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		return fmt.Errorf("briefing failed: %w", runErr)
	}
	return nil
}

func printSources(sources []model.SourceStatus) {
	if !verbose {
		for _, s := range sources {
			if s.State == model.SourceDegraded {
				fmt.Fprintf(os.Stderr, "⚠ %s: %s\n", s.SourceID, s.Reason)
			}
		}
		return
	}
	for _, s := range sources {
		if s.State == model.SourceDegraded {
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", s.SourceID, s.Reason)
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s: %d items in %dms\n", s.SourceID, s.Items, s.DurationMS)
	}
}

func printDispatch(rep model.DispatchReport) {
	for _, o := range rep.Outcomes {
		switch o.Status {
		case model.DispatchSent:
			fmt.Fprintf(os.Stderr, "✓ sent to %s (%d batches)\n", o.Target, o.Batches)
		case model.DispatchSkipped:
			fmt.Fprintf(os.Stderr, "- skipped %s: %s\n", o.Target, o.Reason)
		default:
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", o.Target, o.Reason)
		}
	}
}

func writeReport(report *model.BriefingReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
