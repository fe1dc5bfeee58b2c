package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/trendbrief/internal/feed"
	"github.com/ppiankov/trendbrief/internal/validate"
	"github.com/ppiankov/trendbrief/internal/worker"
)

var (
	sourcesConcurrency int
	sourcesTimeout     time.Duration
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect configured sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := currentConfig()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tNAME\tURL")
		for _, s := range cfg.Sources {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Kind, s.DisplayName(), s.URL)
		}
		return w.Flush()
	},
}

var sourcesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch every configured source and report item counts",
	Long: `Check fetches all configured sources in parallel through the same fetchers
a briefing uses (cache included) and reports how many items each returned.

Example:
  trendbrief sources check --concurrency 4`,
	RunE: runSourcesCheck,
}

var sourcesProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that source endpoints are reachable and fresh",
	Long: `Probe sends a HEAD request (GET when HEAD is refused) to every HTTP source,
retrying transient failures, and flags feeds whose Last-Modified is over a week old.
Archive sources are skipped.`,
	RunE: runSourcesProbe,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesListCmd, sourcesCheckCmd, sourcesProbeCmd)

	sourcesCmd.PersistentFlags().IntVar(&sourcesConcurrency, "concurrency", 8, "number of concurrent workers")
	sourcesCmd.PersistentFlags().DurationVar(&sourcesTimeout, "timeout", time.Minute, "overall timeout")
}

func runSourcesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), sourcesTimeout)
	defer cancel()

	registry, cleanup, err := feed.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	jobs := make([]*worker.FuncJob[int], 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		src := src
		jobs = append(jobs, &worker.FuncJob[int]{
			Key: src.ID,
			Fn: func(ctx context.Context) (int, error) {
				items, err := registry.Fetch(ctx, src)
				return len(items), err
			},
		})
	}

	results := worker.RunAll(ctx, sourcesConcurrency, jobs)
	failures := 0
	for _, src := range cfg.Sources {
		res, ok := results[src.ID]
		switch {
		case !ok:
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: not run\n", src.ID)
		case res.Error != nil:
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", src.ID, res.Error)
		default:
			fmt.Fprintf(os.Stderr, "✓ %s: %d items\n", src.ID, res.Value)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d sources failed", failures, len(cfg.Sources))
	}
	return nil
}

func runSourcesProbe(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sourcesTimeout)
	defer cancel()

	results := validate.NewProber(cfg.HTTP, sourcesConcurrency).Probe(ctx, cfg.Sources)
	unreachable := 0
	for _, r := range results {
		fmt.Fprintln(os.Stderr, describeProbe(r))
		if !r.Skipped && !r.Reachable {
			unreachable++
		}
	}
	if unreachable > 0 {
		return fmt.Errorf("%d sources unreachable", unreachable)
	}
	return nil
}

func describeProbe(r validate.ProbeResult) string {
	switch {
	case r.Skipped:
		return fmt.Sprintf("- %s: skipped (not an HTTP source)", r.SourceID)
	case r.Error != "":
		return fmt.Sprintf("✗ %s: %s", r.SourceID, r.Error)
	case !r.Reachable:
		return fmt.Sprintf("✗ %s: HTTP %d", r.SourceID, r.StatusCode)
	}

	line := fmt.Sprintf("✓ %s: HTTP %d in %dms", r.SourceID, r.StatusCode, r.LatencyMS)
	if r.RedirectURL != "" {
		line += " → " + r.RedirectURL
	}
	if r.Stale && r.LastModified != nil {
		line += fmt.Sprintf(" (stale, last modified %s)", r.LastModified.Format(time.DateOnly))
	}
	return line
}
