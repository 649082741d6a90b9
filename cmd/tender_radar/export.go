package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/export"
	"github.com/jonathan/tender-radar/internal/store"
)

var (
	exportOut           string
	exportAll           bool
	exportMinConfidence float64
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tenders to CSV or XLSX",
	Long: `Write tenders to a .csv or .xlsx file. By default only relevant tenders at or above
the configured confidence floor are exported.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (.csv or .xlsx)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every stored tender")
	exportCmd.Flags().Float64Var(&exportMinConfidence, "min-confidence", -1, "Confidence floor (defaults to classification.confidence_floor)")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

// exportQuery selects the tenders to export.
func exportQuery(all bool, minConfidence, configuredFloor float64) store.Query {
	if all {
		return store.Query{}
	}
	if minConfidence < 0 {
		minConfidence = configuredFloor
	}
	return store.Query{Relevant: store.Bool(true), MinConfidence: minConfidence}
}

func runExport(cmd *cobra.Command, _ []string) error {
	if _, err := export.FormatFromPath(exportOut); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	q := exportQuery(exportAll, exportMinConfidence, a.cfg.Classification.ConfidenceFloor)
	tenders, err := a.store.QueryTenders(ctx, q)
	if err != nil {
		return err
	}
	if err := export.ToFile(exportOut, tenders); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d tender(s) to %s\n", len(tenders), exportOut)
	return nil
}
