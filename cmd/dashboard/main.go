package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/covid-metrics-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/covid-metrics-service/internal/adapter/kafka"
	"github.com/couchcryptid/covid-metrics-service/internal/adapter/source"
	"github.com/couchcryptid/covid-metrics-service/internal/adapter/viewcache"
	"github.com/couchcryptid/covid-metrics-service/internal/config"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
	"github.com/couchcryptid/covid-metrics-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := source.NewClient(cfg.Sources, cfg.SourceTimeout, metrics, logger)
	store := pipeline.NewStore(metrics)
	loaders := pipeline.Loaders{store}

	// Snapshot publishing is feature-flagged via KAFKA_ENABLED.
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(client, pipeline.NewTransformer(logger), loaders, logger, metrics, cfg.RefreshInterval)
	views := viewcache.New(store, cfg.ViewCacheSize, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, store, store, views, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start refresh pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
