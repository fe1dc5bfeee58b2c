package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trendbrief/internal/feed"
	"github.com/ppiankov/trendbrief/internal/model"
)

// opmlCmd represents the opml command
var opmlCmd = &cobra.Command{
	Use:   "opml",
	Short: "Work with OPML subscription lists",
}

var opmlImportCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Convert an OPML file into sources configuration",
	Long: `Import reads an OPML export from a feed reader and prints a sources: block
to paste into the config file. WeChat2RSS feeds get ids of the form wx-<account>,
other feeds feed-<8 hex digits of the URL hash>.

Example:
  trendbrief opml import subscriptions.opml >> ~/.trendbrief/config.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open opml: %w", err)
		}
		defer func() { _ = f.Close() }()

		sources, err := feed.ParseOPML(f)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(sourcesYAML{Sources: sources})
		if err != nil {
			return fmt.Errorf("marshal sources: %w", err)
		}
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Converted %d feeds\n", len(sources))
		return nil
	},
}

// sourcesYAML wraps sources the way they appear in the config file
type sourcesYAML struct {
	Sources []model.SourceConfig `yaml:"sources"`
}

func init() {
	rootCmd.AddCommand(opmlCmd)
	opmlCmd.AddCommand(opmlImportCmd)
}
