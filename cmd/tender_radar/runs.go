package main

import (
	"github.com/spf13/cobra"
)

var (
	runsSource string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent run logs",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVarP(&runsSource, "source", "s", "", "Only show runs of this source")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum rows")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	logs, err := a.store.ListRunLogs(ctx, runsSource, runsLimit)
	if err != nil {
		return err
	}
	renderRunLogs(cmd.OutOrStdout(), logs)
	return nil
}
