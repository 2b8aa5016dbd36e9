// Command analytics runs a standalone query-analytics service.
//
// It consumes the query events every embedding server publishes to Kafka,
// aggregates them in memory (totals per operation, latency percentiles,
// cache hit rate, top tokens and top unknown tokens), and serves the result
// at GET /api/v1/analytics. With analytics.snapshotInterval set, the
// aggregate is also saved to Postgres periodically.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/postgres"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8081, "HTTP port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", *port, "topic", cfg.Kafka.Topics.QueryEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents, aggregator.HandleMessage)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		if len(cfg.Kafka.Brokers) == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no brokers configured"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if cfg.Analytics.SnapshotInterval > 0 {
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store := snapshot.NewStore(pg)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("creating snapshot schema failed", "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			store.Run(gctx, aggregator, cfg.Analytics.SnapshotInterval)
			return nil
		})
		mux.HandleFunc("GET /api/v1/analytics/snapshots/latest", store.LatestHandler)
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pg.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	var chain http.Handler = mux
	chain = middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}
