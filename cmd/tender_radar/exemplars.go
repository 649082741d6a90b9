package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/similarity"
	"github.com/jonathan/tender-radar/internal/types"
)

var (
	exemplarTitle        string
	exemplarDescription  string
	exemplarConfidence   float64
	promoteMinConfidence float64
)

var exemplarsCmd = &cobra.Command{
	Use:   "exemplars",
	Short: "Manage the positive exemplars of the similarity tier",
}

var exemplarsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a manually confirmed relevant tender",
	RunE:  runExemplarsAdd,
}

var exemplarsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exemplars",
	RunE:  runExemplarsList,
}

var exemplarsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Refit the similarity model over all exemplars",
	RunE:  runExemplarsRebuild,
}

var exemplarsPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote stored relevant tenders to exemplars",
	Long: `Copy stored tenders classified relevant at or above the promotion threshold into the
exemplar corpus and refit the similarity model.`,
	RunE: runExemplarsPromote,
}

func init() {
	exemplarsAddCmd.Flags().StringVar(&exemplarTitle, "title", "", "Tender title")
	exemplarsAddCmd.Flags().StringVar(&exemplarDescription, "description", "", "Tender description")
	exemplarsAddCmd.Flags().Float64Var(&exemplarConfidence, "confidence", 1, "Confidence in [0, 1]")
	exemplarsPromoteCmd.Flags().Float64Var(&promoteMinConfidence, "min-confidence", -1, "Confidence floor (defaults to classification.promotion_threshold)")

	exemplarsCmd.AddCommand(exemplarsAddCmd, exemplarsListCmd, exemplarsRebuildCmd, exemplarsPromoteCmd)
	rootCmd.AddCommand(exemplarsCmd)
}

func runExemplarsAdd(cmd *cobra.Command, _ []string) error {
	if exemplarTitle == "" && exemplarDescription == "" {
		return fmt.Errorf("--title or --description is required")
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	e, err := a.similarity.AddExemplar(ctx, exemplarTitle, exemplarDescription, exemplarConfidence, types.ExemplarManual)
	if err != nil {
		return err
	}
	if err := a.similarity.Rebuild(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added exemplar %s (%d total)\n", e.ID, a.similarity.Len())
	return nil
}

func runExemplarsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	exemplars, err := a.similarity.Exemplars(ctx)
	if err != nil {
		return err
	}
	renderExemplars(cmd.OutOrStdout(), exemplars)
	return nil
}

func runExemplarsRebuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.similarity.Rebuild(ctx); err != nil {
		if errors.Is(err, similarity.ErrNotReady) {
			return fmt.Errorf("no exemplars to fit; add some with 'exemplars add' or 'exemplars promote'")
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt similarity model over %d exemplar(s)\n", a.similarity.Len())
	return nil
}

func runExemplarsPromote(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	floor := promoteMinConfidence
	if floor < 0 {
		floor = a.cfg.Classification.PromotionThreshold
	}
	added, err := a.similarity.Promote(ctx, a.store, floor)
	if err != nil {
		return err
	}
	if added > 0 {
		if err := a.similarity.Rebuild(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Promoted %d tender(s); corpus holds %d exemplar(s)\n", added, a.similarity.Len())
	return nil
}
