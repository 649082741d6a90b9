package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/scheduler"
)

var scheduleCron string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestion and classification on a cron schedule",
	Long: `Run the full pipeline on a standard 5-field cron expression (or @daily, @every 6h)
until interrupted. A trigger is skipped while the previous run is still going.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "Cron expression (defaults to the configured schedule)")
	rootCmd.AddCommand(scheduleCmd)
}

// newScheduler wires a cron scheduler that runs the pipeline over every source.
func (a *app) newScheduler(spec string) (*scheduler.Scheduler, error) {
	if spec == "" {
		spec = a.cfg.Schedule
	}
	if spec == "" {
		return nil, fmt.Errorf("no schedule configured; set schedule in the config or pass --cron")
	}
	return scheduler.New(spec, func(ctx context.Context) error {
		res, err := a.execute(ctx, nil, true, false)
		if err != nil {
			return err
		}
		if !res.Succeeded() {
			return fmt.Errorf("one or more sources did not complete")
		}
		return nil
	}, a.log.With(logger.String("component", "scheduler")))
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{classifiers: true, notifier: true})
	if err != nil {
		return err
	}
	defer a.close()

	s, err := a.newScheduler(scheduleCron)
	if err != nil {
		return err
	}
	s.Start()
	fmt.Fprintf(cmd.OutOrStdout(), "Next run at %s; press Ctrl+C to stop\n", s.Next().Format("2006-01-02 15:04"))

	<-ctx.Done()
	s.Stop()
	return nil
}
