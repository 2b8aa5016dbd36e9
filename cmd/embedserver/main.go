// Command embedserver serves the Friends embedding query API.
//
// It loads the configured vocabulary, answers similarity, analogy,
// odd-one-out and projection queries over HTTP, caches responses in Redis,
// and publishes query analytics to Kafka when those are enabled. SIGHUP,
// POST /api/v1/admin/reload and the vocabulary-reload topic all reload the
// vocabulary without a restart.
//
// Usage:
//
//	go run ./cmd/embedserver [-config configs/development.yaml]
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/analytics/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/api/cache"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/engine"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/source"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/reload"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/version"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
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
	slog.Info("starting embedding service",
		"port", cfg.Server.Port,
		"version", version.Version,
		"source", cfg.Embedding.Source,
	)

	if err := run(cfg); err != nil {
		slog.Error("embedding service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("embedding service stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	src, err := source.FromConfig(cfg.Embedding, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("configuring embedding source: %w", err)
	}
	holder := engine.NewHolder(src,
		engine.WithLoadTimeout(cfg.Embedding.LoadTimeout),
		engine.WithMetrics(m),
	)
	if _, err := holder.Reload(ctx); err != nil {
		return fmt.Errorf("loading vocabulary from %s: %w", src.Name(), err)
	}

	var (
		redisClient *pkgredis.Client
		queryCache  *cache.QueryCache
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, response caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			holder.OnReload(func(snap *engine.Snapshot) {
				invalidateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if n, err := queryCache.Invalidate(invalidateCtx); err != nil {
					slog.Warn("cache invalidation after reload failed", "error", err)
				} else {
					slog.Info("cache invalidated after reload", "keys", n, "version", snap.Version)
				}
			})
			slog.Info("response cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	aggregator := analytics.NewAggregator()
	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		var sink analytics.Sink = aggregator
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
			defer producer.Close()
			sink = analytics.NewKafkaSink(producer)

			// Every replica reads the whole topic so /api/v1/analytics reports
			// cluster-wide totals.
			eventsCfg := cfg.Kafka
			eventsCfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-analytics-" + replicaID()
			consumer := kafka.NewConsumer(eventsCfg, cfg.Kafka.Topics.QueryEvents, aggregator.HandleMessage)
			g.Go(func() error { return consumer.Run(gctx) })
		}
		collector = analytics.NewCollector(
			cfg.Analytics.BufferSize,
			cfg.Analytics.BatchSize,
			cfg.Analytics.FlushInterval,
			sink,
		)
		collector.Start(gctx)
		defer collector.Close()
		slog.Info("query analytics enabled", "kafka", cfg.Kafka.Enabled)
	}

	var (
		pg        *postgres.Client
		snapshots *snapshot.Store
	)
	if cfg.Analytics.Enabled && cfg.Analytics.SnapshotInterval > 0 {
		pg, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		} else {
			defer pg.Close()
			store := snapshot.NewStore(pg)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("analytics snapshot schema unavailable", "error", err)
			} else {
				snapshots = store
				g.Go(func() error {
					store.Run(gctx, aggregator, cfg.Analytics.SnapshotInterval)
					return nil
				})
			}
		}
	}

	if cfg.Kafka.Enabled {
		// Reload requests must reach every replica, so each one joins its own
		// consumer group.
		reloadCfg := cfg.Kafka
		reloadCfg.ConsumerGroup = cfg.Kafka.ConsumerGroup + "-reload-" + replicaID()
		consumer := kafka.NewConsumer(reloadCfg, cfg.Kafka.Topics.VocabularyReload, reload.HandleMessage(holder))
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		reload.OnSignal(gctx, holder)
		return nil
	})

	checker := health.NewChecker()
	checker.Register("vocabulary", func(ctx context.Context) health.ComponentHealth {
		snap, err := holder.Current()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d tokens, version %s", snap.Store.Size(), snap.Version),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if pg != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pg.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	deps := handler.Deps{
		Vocabulary: holder,
		Query:      cfg.Query,
		Lowercase:  cfg.Embedding.Lowercase,
		Cache:      queryCache,
		Metrics:    m,
	}
	if collector != nil {
		deps.Tracker = collector
	}
	h := handler.New(deps)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	if snapshots != nil {
		mux.HandleFunc("GET /api/v1/analytics/snapshots/latest", snapshots.LatestHandler)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Run(time.Minute, gctx.Done())
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	if cfg.Server.AdminToken == "" {
		slog.Warn("no admin token configured, reload and cache invalidation are open")
	}
	chain = middleware.AdminAuth(cfg.Server.AdminToken, "/api/v1/admin", "/api/v1/cache/invalidate")(chain)
	chain = middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("embedding service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
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

	return g.Wait()
}

// replicaID names this process for per-replica consumer groups.
func replicaID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fmt.Sprintf("pid-%d", os.Getpid())
}
