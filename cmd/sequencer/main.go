// Command sequencer serves the beam-search sequencer over HTTP.
//
// Usage:
//
//	go run ./cmd/sequencer [-config configs/development.yaml]
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/cache"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/internal/sequencer/handler"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting sequencer service",
		"port", cfg.Server.Port,
		"beam_width", cfg.Sequencer.BeamWidth,
		"max_length", cfg.Sequencer.MaxLength,
		"checkpoint_interval", cfg.Sequencer.CheckpointInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()

	var consumed ledger.Ledger = ledger.NewMemoryLedger()
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pgLedger := ledger.NewPostgresLedger(db, m)
		if err := pgLedger.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare ledger schema", "error", err)
			os.Exit(1)
		}
		consumed = pgLedger
		checker.Register("postgres", health.PingCheck(db.Ping, true))
		slog.Info("postgres ledger enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	} else {
		slog.Info("postgres disabled, using in-memory ledger")
	}

	var resultCache *cache.ResultCache
	if cfg.Redis.Addr != "" {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			resultCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			checker.Register("redis-circuit", health.BreakerCheck(resultCache.Breaker()))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator(nil)
	var publisher analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SequenceEvents, m)
		defer producer.Close()
		publisher = producer
		checker.Register("kafka", health.BreakerCheck(producer.Breaker()))

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SequenceEvents, analytics.HandleEvent(aggregator), m)
		aggregator.SetConsumer(consumer)
		go func() {
			if err := aggregator.Start(ctx); err != nil {
				slog.Error("analytics aggregator error", "error", err)
			}
		}()
		slog.Info("sequence events published to kafka", "topic", cfg.Kafka.Topics.SequenceEvents)
	}
	collector := analytics.NewCollector(publisher, 100, 0, m)
	collector.Start(ctx)
	defer collector.Close()

	h := handler.New(cfg.Sequencer, consumed, resultCache, collector, m)
	analyticsH := analytics.NewHandler(aggregator, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sequence", h.Sequence)
	mux.HandleFunc("GET /api/v1/plays/{id}/consumed", h.Consumed)
	mux.HandleFunc("DELETE /api/v1/plays/{id}/consumed", h.ResetPlay)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if rl := cfg.Server.RateLimit; rl.RequestsPerSecond > 0 {
		chain = middleware.RateLimit(middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst))(chain)
	}
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

	slog.Info("sequencer service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("sequencer service stopped")
}
