// Command searcher serves queries over a segment directory built by the
// indexer. It watches the directory and picks up new segments without a
// restart; in-flight requests finish on the snapshot they started with.
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/auth/apikey"
	authmw "github.com/Adithya-Monish-Kumar-K/facet-search/internal/auth/middleware"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/watcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	tracing.Configure(cfg.Tracing)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("searcher", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	engine, err := indexer.OpenReadOnly(cfg.Index)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("index opened", "segments", engine.NumSegments(), "generation", engine.Generation())

	pool := searcher.NewPool(engine, searcher.Options{
		Parallelism:  cfg.Search.Parallelism,
		DocCacheSize: cfg.Search.DocCacheSize,
		StrictFacets: cfg.Search.StrictFacets,
		Metrics:      m,
	})
	defer pool.Close()

	if cfg.Index.Watch {
		w := watcher.New(cfg.Index.DataDir, engine, cfg.Index.WatchDebounce, func(gen uint64) {
			slog.Info("index reloaded", "generation", gen, "segments", engine.NumSegments())
		})
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("segment watcher stopped", "error", err)
			}
		}()
	}

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var tracker handler.Tracker
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.SearchEvents)
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
	}
	if len(cfg.Auth.CORSOrigins) > 0 {
		middlewares = append(middlewares, authmw.CORS(authmw.DefaultCORSConfig(cfg.Auth.CORSOrigins)))
	}
	var keyDB *postgres.Client
	if cfg.Auth.Enabled {
		keyDB, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("auth enabled but postgres is unavailable", "error", err)
			os.Exit(1)
		}
		defer keyDB.Close()
		store := apikey.NewPostgresStore(keyDB)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare api key table", "error", err)
			os.Exit(1)
		}
		limiter := ratelimit.New(cfg.Auth.RateLimitWindow)
		go limiter.Run(ctx, 5*time.Minute)
		middlewares = append(middlewares,
			authmw.Auth(apikey.NewValidator(store, cfg.Auth.CacheSize, cfg.Auth.CacheTTL)),
			authmw.RateLimit(limiter, int(cfg.Auth.RateLimitWindow.Seconds())),
		)
		slog.Info("api key auth enabled", "rate_limit_window", cfg.Auth.RateLimitWindow)
	}
	middlewares = append(middlewares, middleware.Timeout(cfg.Server.WriteTimeout))

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		n := engine.NumSegments()
		if n == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no segments loaded"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d segments, generation %d", n, engine.Generation()),
		}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusUp, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if keyDB != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := keyDB.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	h := handler.New(pool, queryCache, tracker, handler.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
		Timeout:      cfg.Search.Timeout,
	})
	mux := http.NewServeMux()
	h.Register(mux)
	checker.Mount(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middlewares...),
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
