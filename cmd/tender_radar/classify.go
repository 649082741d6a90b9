package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/store"
	"github.com/jonathan/tender-radar/internal/types"
)

var (
	classifyAll    bool
	classifySource string
	classifyLimit  int
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify stored tenders",
	Long: `Classify stored tenders that have no verdict or an error verdict. With --all every
stored tender is classified again; a verdict only replaces one from an equal or lower tier.`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyAll, "all", false, "Classify every stored tender, not only unclassified ones")
	classifyCmd.Flags().StringVar(&classifySource, "source-kind", "", "Only classify tenders from this source kind (api_a, html_b, search_c, rss)")
	classifyCmd.Flags().IntVar(&classifyLimit, "limit", 0, "Maximum number of tenders to classify (0 = no limit)")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{classifiers: true, notifier: true})
	if err != nil {
		return err
	}
	defer a.close()

	q := store.Query{
		Unclassified: !classifyAll,
		Source:       types.SourceKind(classifySource),
		Limit:        classifyLimit,
	}
	res, err := a.orch.Reclassify(ctx, q)
	a.flush()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Considered %d, updated %d, relevant %d\n", res.Considered, res.Applied, res.Relevant)
	return nil
}
