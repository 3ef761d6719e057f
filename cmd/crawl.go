package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one crawl in the
// foreground and prints the per-source summary.
func newCrawlCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl for a query",
		Long: `Runs every active source in order for --query and downloads accepted
images into the destination directory. Ctrl-C cancels the run after the
in-flight download finishes; files already written are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, query)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&query, "query", "q", "", "search query (required)")
	flags.String("dest", "", "destination directory")
	flags.StringSlice("sources", nil, "sources to run, in order; replaces the configured list")
	flags.Int("max", 0, "global download budget")
	flags.Int("per-source", 0, "default cap per source")
	flags.Bool("headless", true, "run the browser without a window")
	flags.Bool("safe-search", true, "ask sources to filter explicit results")
	bindFlag(flags, "dest", "crawl.destination")
	bindFlag(flags, "sources", "providers.override")
	bindFlag(flags, "max", "crawl.max_downloads")
	bindFlag(flags, "per-source", "crawl.per_source_max")
	bindFlag(flags, "headless", "crawl.headless")
	bindFlag(flags, "safe-search", "crawl.safe_search")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, query string) error {
	return runWithApp(cmd, func(appInstance App) error {
		query = strings.TrimSpace(query)
		if query == "" {
			return errors.New("--query must not be empty")
		}
		stats, err := appInstance.Crawl(cmd.Context(), appInstance.Job(query))
		if printErr := printSummary(cmd.OutOrStdout(), stats); printErr != nil {
			appInstance.Logger().Warn("print summary failed", zap.Error(printErr))
		}
		if err != nil {
			return fmt.Errorf("run crawl: %w", err)
		}
		appInstance.Logger().Info("crawl command finished", zap.String("state", string(stats.State)))
		return nil
	})
}

func printSummary(w io.Writer, stats crawler.RunStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s: %s\n", stats.RunID, stats.State)
	fmt.Fprintln(tw, "SOURCE\tREQUESTED\tDISCOVERED\tDOWNLOADED\tSKIPPED\tERRORED")
	for _, s := range stats.Sources {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Name, s.Requested, s.Discovered, s.Downloaded, s.Skipped, s.Errored)
	}
	t := stats.Totals
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d\t%d\n", t.Requested, t.Discovered, t.Downloaded, t.Skipped, t.Errored)
	if stats.Error != "" {
		fmt.Fprintf(tw, "error: %s\n", stats.Error)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush summary: %w", err)
	}
	return nil
}
