package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/orchestrator"
	"github.com/jonathan/tender-radar/internal/server"
	"github.com/jonathan/tender-radar/internal/server/ratelimit"
)

var (
	servePort     int
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing stored tenders, run logs and exemplars. Every endpoint
except /health and /metrics requires a bearer token issued by the token command.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to server.port)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "Also run the configured schedule in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{classifiers: true, notifier: true})
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.JWT.Require(); err != nil {
		return err
	}
	port := a.cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}

	srv, err := server.New(server.Config{
		Port:      port,
		Store:     a.store,
		Exemplars: a.similarity,
		Trigger: func(ctx context.Context) (orchestrator.RunResult, error) {
			return a.execute(ctx, nil, true, false)
		},
		Metrics:   a.metrics.Handler(),
		JWT:       server.NewJWTService(&a.cfg.JWT),
		RateLimit: ratelimit.NewConfig(a.cfg.Server.RequestsPerSecond, a.cfg.Server.Burst),
		Logger:    a.log.With(logger.String("component", "server")),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if serveSchedule {
		s, err := a.newScheduler("")
		if err != nil {
			return err
		}
		s.Start()
		defer s.Stop()
	}
	return srv.Start(ctx)
}
