package main

import (
	"github.com/spf13/cobra"
)

var ingestSources []string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, deduplicate, filter and store tenders without classifying",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVarP(&ingestSources, "source", "s", nil, "Only ingest the named source(s)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.execute(ctx, ingestSources, false, false)
	if err != nil {
		return err
	}
	return reportRun(cmd, res)
}
