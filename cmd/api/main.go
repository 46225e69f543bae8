package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kurihiro0119/github-social-relay/internal/api"
	"github.com/kurihiro0119/github-social-relay/internal/app"
	"github.com/kurihiro0119/github-social-relay/internal/config"
	"github.com/kurihiro0119/github-social-relay/internal/logging"
	"github.com/kurihiro0119/github-social-relay/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Configuration error")
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize handler
	handler := api.NewHandler(api.Deps{
		Verifier:       webhook.NewVerifier(cfg.GitHubWebhookSecret),
		Events:         application.Events,
		Aggregator:     application.Aggregator,
		Metrics:        application.Metrics,
		Logger:         logger.WithField("component", "api"),
		DailyPostTime:  cfg.DailyPostTime,
		PostingMethod:  cfg.PostingMethod(),
		ReviewRequired: cfg.RequirePostReview,
		ImmediatePost:  cfg.ImmediatePost,
		Writer:         application.Generator,
		Poster:         application.Publisher,
		BaseContext:    ctx,
	})

	// Setup routes
	router := api.SetupRoutes(handler, application.Metrics, logger)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		application.Scheduler.Run(ctx)
	}()

	// Start server
	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.WithFields(logging.Fields{
		"addr":            addr,
		"daily_post_time": cfg.DailyPostTime + " UTC",
		"posting_method":  cfg.PostingMethod(),
		"review_required": cfg.RequirePostReview,
		"storage_type":    cfg.StorageType,
		"data_dir":        cfg.DataDir,
	}).Info("Starting GitHub to LinkedIn relay")

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("Server failed")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	<-schedulerDone
	handler.Wait()
	logger.Info("Stopped")
}
