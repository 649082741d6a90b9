package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/tender-radar/internal/config"
	"github.com/jonathan/tender-radar/internal/fetch"
	"github.com/jonathan/tender-radar/internal/filter"
	"github.com/jonathan/tender-radar/internal/llm"
	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/notify"
	"github.com/jonathan/tender-radar/internal/orchestrator"
	"github.com/jonathan/tender-radar/internal/primary"
	"github.com/jonathan/tender-radar/internal/similarity"
	"github.com/jonathan/tender-radar/internal/sources"
	"github.com/jonathan/tender-radar/internal/store"
	"github.com/jonathan/tender-radar/internal/telemetry"
)

// appOptions selects which collaborators a command needs.
type appOptions struct {
	// classifiers builds the primary and similarity tiers.
	classifiers bool
	// notifier wires Telegram when configured.
	notifier bool
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        *config.Config
	log        logger.Logger
	metrics    *telemetry.Provider
	store      store.Store
	similarity *similarity.Classifier
	llmClient  llm.Client
	orch       *orchestrator.Orchestrator
}

// loadConfig reads --config, applies --log-level and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if useMemory {
		cfg.DatabaseURL = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, metrics: telemetry.NewProvider()}
	if a.store, err = openStore(ctx, cfg, log); err != nil {
		return nil, err
	}

	a.similarity = similarity.New(exemplarRepository(cfg, a.store), similarity.Options{
		Threshold: cfg.Classification.SimilarityThreshold,
		Logger:    log.With(logger.String("component", "similarity")),
	})

	var primaryTier, fallbackTier orchestrator.Tier
	if opts.classifiers {
		if err := a.similarity.Rebuild(ctx); err != nil {
			if !errors.Is(err, similarity.ErrNotReady) {
				a.close()
				return nil, fmt.Errorf("failed to build similarity corpus: %w", err)
			}
			log.Warn("No positive exemplars yet; the fallback tier answers with error verdicts")
		}
		fallbackTier = a.similarity

		if c, err := a.newPrimary(ctx); err != nil {
			log.Warn("Primary classifier disabled", logger.Error(err))
		} else {
			primaryTier = c
		}
	}

	orchOpts := orchestrator.Options{
		Logger:              log.With(logger.String("component", "orchestrator")),
		Metrics:             a.metrics,
		NotifyMinConfidence: cfg.Classification.ConfidenceFloor,
	}
	if opts.notifier && cfg.Notify.Enabled() {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, log)
		if err != nil {
			log.Warn("Telegram notifications disabled", logger.Error(err))
		} else {
			orchOpts.Notifier = tg
		}
	}
	a.orch = orchestrator.New(primaryTier, fallbackTier, a.store, orchOpts)
	return a, nil
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to the
// in-memory store with a JSON snapshot otherwise.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		m, err := store.OpenMemory(cfg.MemoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
		log.Debug("Using in-memory store", logger.String("path", cfg.MemoryPath))
		return m, nil
	}
	pg, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pg, nil
}

// exemplarRepository keeps exemplars in Postgres when it is the store, and in
// the exemplars file otherwise so they survive a reset of the memory snapshot.
func exemplarRepository(cfg *config.Config, st store.Store) similarity.ExemplarRepository {
	if _, ok := st.(*store.Memory); ok && cfg.Classification.ExemplarsPath != "" {
		return similarity.NewFileRepository(cfg.Classification.ExemplarsPath)
	}
	return st
}

func (a *app) newPrimary(ctx context.Context) (*primary.Classifier, error) {
	key := a.cfg.LLMAPIKey()
	if key == "" {
		return nil, fmt.Errorf("%s is not set", a.cfg.LLM.Provider.APIKeyEnv())
	}
	client, err := llm.NewClient(ctx, &a.cfg.LLM, key)
	if err != nil {
		return nil, err
	}
	a.llmClient = client
	c := primary.New(client, primary.Config{
		ServiceCatalogue: a.cfg.Classification.ServiceCatalogue,
		CuratedKeywords:  a.cfg.Classification.CuratedKeywords,
		Timeout:          a.cfg.Classification.Timeout,
		Retry:            a.cfg.Retry,
		Reprompt:         a.cfg.Classification.Reprompt,
	}, a.log.With(logger.String("component", "primary")))
	a.log.Debug("Primary classifier ready", logger.String("model", c.Model()))
	return c, nil
}

// httpOptions builds the outbound request options shared by connectors.
func (a *app) httpOptions() *fetch.Options {
	opts := fetch.DefaultOptions()
	if a.cfg.HTTP.Timeout > 0 {
		opts.Timeout = a.cfg.HTTP.Timeout
	}
	if a.cfg.HTTP.UserAgent != "" {
		opts.UserAgent = a.cfg.HTTP.UserAgent
	}
	return opts
}

// sources builds a connector for every enabled source. only restricts the set
// to the named sources.
func (a *app) sources(only []string) ([]orchestrator.Source, error) {
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}

	httpOpts := a.httpOptions()
	deps := sources.Deps{
		HTTP:    httpOpts,
		Retry:   a.cfg.Retry,
		Logger:  a.log,
		Metrics: a.metrics,
	}

	var out []orchestrator.Source
	for _, sc := range a.cfg.EnabledSources() {
		if len(want) > 0 && !want[sc.Name] {
			continue
		}
		conn, err := sources.New(sc, deps)
		if err != nil {
			return nil, err
		}
		src := orchestrator.Source{Connector: conn}
		if sc.Enrich {
			src.Enricher = sources.NewEnricher(sc, deps)
		}
		out = append(out, src)
		delete(want, sc.Name)
	}
	if len(want) > 0 {
		missing := slices.Sorted(maps.Keys(want))
		return nil, fmt.Errorf("unknown or disabled source(s): %s", strings.Join(missing, ", "))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	return out, nil
}

// runRequest assembles a run over the selected sources.
func (a *app) runRequest(only []string, classify, reclassify bool) (orchestrator.RunRequest, error) {
	srcs, err := a.sources(only)
	if err != nil {
		return orchestrator.RunRequest{}, err
	}
	req := orchestrator.RunRequest{
		Sources:    srcs,
		Params:     a.cfg.FilterParams(time.Now().UTC()),
		Classify:   classify,
		Reclassify: reclassify,
	}
	if f := filter.New(a.cfg.Filter()); !f.Empty() {
		req.Filter = f
	}
	return req, nil
}

func (a *app) close() {
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("Failed to close store", logger.Error(err))
		}
	}
	_ = a.log.Sync()
}

// flush persists the memory snapshot between runs of long-lived commands.
func (a *app) flush() {
	if m, ok := a.store.(*store.Memory); ok {
		if err := m.Flush(); err != nil {
			a.log.Error("Failed to write memory snapshot", logger.Error(err))
		}
	}
}

// execute performs one run and persists the result.
func (a *app) execute(ctx context.Context, only []string, classify, reclassify bool) (orchestrator.RunResult, error) {
	req, err := a.runRequest(only, classify, reclassify)
	if err != nil {
		return orchestrator.RunResult{}, err
	}
	res, err := a.orch.Run(ctx, req)
	a.flush()
	return res, err
}
