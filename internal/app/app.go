// Package app assembles the relay components from configuration.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/github-social-relay/internal/aggregator"
	"github.com/kurihiro0119/github-social-relay/internal/config"
	"github.com/kurihiro0119/github-social-relay/internal/eventstore"
	"github.com/kurihiro0119/github-social-relay/internal/llm"
	"github.com/kurihiro0119/github-social-relay/internal/metrics"
	"github.com/kurihiro0119/github-social-relay/internal/publisher"
	"github.com/kurihiro0119/github-social-relay/internal/scheduler"
	"github.com/kurihiro0119/github-social-relay/internal/storage"
	"github.com/kurihiro0119/github-social-relay/internal/storage/postgres"
	"github.com/kurihiro0119/github-social-relay/internal/storage/sqlite"
)

// App owns every long-lived component.
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Metrics    *metrics.Collector
	Events     *eventstore.Store
	History    storage.Storage // nil when STORAGE_TYPE=none
	Generator  *llm.Generator
	Publisher  *publisher.Publisher
	Scheduler  *scheduler.Scheduler
	Aggregator aggregator.Aggregator
}

// New builds the application. The configuration must already be validated.
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	hour, minute, err := config.ParsePostTime(cfg.DailyPostTime)
	if err != nil {
		return nil, err
	}

	history, err := OpenHistory(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New("social_relay")
	events := eventstore.New(cfg.DataDir, logger.WithField("component", "eventstore"))

	completer := llm.NewClient(llm.Config{APIURL: cfg.LLMAPIURL, APIKey: cfg.GroqAPIKey, Model: cfg.LLMModel}, nil)
	generator := llm.NewGenerator(completer, logger.WithField("component", "llm"))

	var sender publisher.Sender
	if cfg.UseRelay() {
		sender = publisher.NewRelay(cfg.RelayWebhookURL, logger.WithField("component", "relay"))
	} else {
		sender = publisher.NewLinkedIn(cfg.LinkedInAPIURL, cfg.LinkedInAccessToken, logger.WithField("component", "linkedin"))
	}

	var review *publisher.ReviewGate
	if cfg.RequirePostReview {
		review = publisher.NewReviewGate(cfg.ReviewDir, publisher.DefaultReviewInterval, publisher.DefaultReviewAttempts,
			logger.WithField("component", "review"))
	}

	pub := publisher.New(publisher.Deps{
		Sender:  sender,
		Review:  review,
		History: history,
		Metrics: m,
		Logger:  logger.WithField("component", "publisher"),
	})

	sched := scheduler.New(events, generator, pub, hour, minute,
		logger.WithField("component", "scheduler"), scheduler.WithMetrics(m))

	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Events:     events,
		History:    history,
		Generator:  generator,
		Publisher:  pub,
		Scheduler:  sched,
		Aggregator: aggregator.NewAggregator(events),
	}, nil
}

// OpenHistory opens the post-history store selected by STORAGE_TYPE.
func OpenHistory(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "none":
		return nil, nil
	case "postgres":
		store, err := postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL storage: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		return store, nil
	}
}

// Close releases the post-history store.
func (a *App) Close() error {
	if a.History == nil {
		return nil
	}
	return a.History.Close()
}
