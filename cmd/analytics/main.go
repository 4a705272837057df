// Command analytics aggregates sequence events from Kafka, serves the live
// stats, and, when Postgres is enabled, persists periodic snapshots and
// serves their history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-snapshot-interval 1m] [-snapshot-retention 168h]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	snapshotInterval := flag.Duration("snapshot-interval", time.Minute, "how often stats are persisted")
	snapshotRetention := flag.Duration("snapshot-retention", 7*24*time.Hour, "how long snapshots are kept (0 keeps all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	if !cfg.Kafka.Enabled {
		slog.Error("analytics service requires kafka.enabled")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	agg := analytics.NewAggregator(nil)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SequenceEvents, analytics.HandleEvent(agg), m)
	agg.SetConsumer(consumer)

	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.SequenceEvents)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	var snapshots analytics.SnapshotLister
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot schema", "error", err)
			os.Exit(1)
		}
		if latest, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("reading latest snapshot failed", "error", err)
		} else if latest != nil {
			slog.Info("previous snapshot found",
				"captured_at", latest.CapturedAt,
				"total_sequences", latest.TotalSequences,
			)
		}
		store.StartPeriodicSave(ctx, agg, *snapshotInterval, *snapshotRetention)
		snapshots = store
		checker.Register("postgres", health.PingCheck(db.Ping, true))
	}

	analyticsHandler := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
