package main

import (
	"context"
	"fmt"

	"github.com/EVODENUBY/DYPSE-sub000/internal/config"
	"github.com/EVODENUBY/DYPSE-sub000/internal/db"
	"github.com/EVODENUBY/DYPSE-sub000/internal/events"
	"github.com/EVODENUBY/DYPSE-sub000/internal/ingest"
	"github.com/EVODENUBY/DYPSE-sub000/internal/observability"
	"github.com/EVODENUBY/DYPSE-sub000/internal/scraper"
	"go.uber.org/zap"
)

// app holds the components shared by the serve and scrape commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *db.DB
	publisher events.Publisher
	pipeline  *ingest.Pipeline
}

// newApp loads configuration, opens and migrates the store and wires the pipeline.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	publisher, err := events.NewPublisher(cfg.NATSURL, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	pipeline, err := newPipeline(cfg, store, publisher, logger)
	if err != nil {
		publisher.Close()
		_ = store.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, publisher: publisher, pipeline: pipeline}, nil
}

func newPipeline(cfg *config.Config, store ingest.Store, publisher events.Publisher, logger *zap.Logger) (*ingest.Pipeline, error) {
	board, err := scraper.NewJobBoard(cfg.Scrape.BaseURL, scraper.DefaultSelectors())
	if err != nil {
		return nil, fmt.Errorf("failed to create site adapter: %w", err)
	}

	fetchOpts := scraper.DefaultFetcherOptions()
	fetchOpts.Timeout = cfg.Scrape.Timeout.Std()

	walker := scraper.NewWalker(board, scraper.WalkerConfig{
		Delay:    cfg.Scrape.Delay.Std(),
		MaxPages: cfg.Scrape.MaxPages,
		Fetcher:  scraper.NewFetcher(fetchOpts),
		Logger:   logger,
	})

	reconciler := ingest.NewReconciler(store, walker.Source(), publisher, logger)
	return ingest.NewPipeline(walker, reconciler, ingest.PipelineOptions{
		FetchDetails: cfg.Scrape.FetchDetails,
		Logger:       logger,
	}), nil
}

// Close releases the store and the event connection and flushes the logger.
func (a *app) Close() {
	a.publisher.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
