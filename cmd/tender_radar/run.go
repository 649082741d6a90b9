package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/orchestrator"
)

var (
	runSources    []string
	runReclassify bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest every source and classify new tenders",
	Long: `Fetch all enabled sources, deduplicate and filter the listings, store them and
classify each tender with the primary tier, falling back to the similarity tier.
One run log is recorded per source. Tenders that became relevant are sent to Telegram
when notifications are configured.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runSources, "source", "s", nil, "Only run the named source(s)")
	runCmd.Flags().BoolVar(&runReclassify, "reclassify", false, "Also classify tenders that already have a primary verdict")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{classifiers: true, notifier: true})
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.execute(ctx, runSources, true, runReclassify)
	if err != nil {
		return err
	}
	return reportRun(cmd, res)
}

// reportRun prints the run logs and fails when any source failed.
func reportRun(cmd *cobra.Command, res orchestrator.RunResult) error {
	renderRunLogs(cmd.OutOrStdout(), res.Logs)
	if len(res.NewlyRelevant) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d tender(s) became relevant\n", len(res.NewlyRelevant))
	}
	if !res.Succeeded() {
		return fmt.Errorf("one or more sources did not complete")
	}
	return nil
}
