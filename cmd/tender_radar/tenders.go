package main

import (
	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/store"
	"github.com/jonathan/tender-radar/internal/types"
)

var (
	tendersRelevant      bool
	tendersMinConfidence float64
	tendersMethod        string
	tendersSourceKind    string
	tendersUnclassified  bool
	tendersSearch        string
	tendersLimit         int
)

var tendersCmd = &cobra.Command{
	Use:   "tenders",
	Short: "List stored tenders",
	RunE:  runTenders,
}

func init() {
	f := tendersCmd.Flags()
	f.BoolVar(&tendersRelevant, "relevant", false, "Only relevant (or, with --relevant=false, only not relevant) tenders")
	f.Float64Var(&tendersMinConfidence, "min-confidence", 0, "Minimum verdict confidence (0-100)")
	f.StringVar(&tendersMethod, "method", "", "Verdict method (primary, fallback, error)")
	f.StringVar(&tendersSourceKind, "source-kind", "", "Source kind (api_a, html_b, search_c, rss)")
	f.BoolVar(&tendersUnclassified, "unclassified", false, "Only tenders without a usable verdict")
	f.StringVarP(&tendersSearch, "search", "q", "", "Case-insensitive title or organization search")
	f.IntVarP(&tendersLimit, "limit", "n", 50, "Maximum rows")
	rootCmd.AddCommand(tendersCmd)
}

// tendersQuery builds the store query from the command flags.
func tendersQuery(cmd *cobra.Command) (store.Query, error) {
	q := store.Query{
		MinConfidence: tendersMinConfidence,
		Source:        types.SourceKind(tendersSourceKind),
		Unclassified:  tendersUnclassified,
		Search:        tendersSearch,
		Limit:         tendersLimit,
	}
	if cmd.Flags().Changed("relevant") {
		q.Relevant = store.Bool(tendersRelevant)
	}
	if tendersMethod != "" {
		m, err := types.ParseMethod(tendersMethod)
		if err != nil {
			return q, err
		}
		q.Method = m
	}
	return q, nil
}

func runTenders(cmd *cobra.Command, _ []string) error {
	q, err := tendersQuery(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	tenders, err := a.store.QueryTenders(ctx, q)
	if err != nil {
		return err
	}
	renderTenders(cmd.OutOrStdout(), tenders)
	return nil
}
