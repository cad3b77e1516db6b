// Command ingestion accepts documents over HTTP, validates them against the
// index schema and forwards them to the Kafka documents topic, where an
// indexer started with -serve -kafka picks them up.
//
// Usage:
//
//	ingestion -schema schema.json [-config config.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	schemaPath := flag.String("schema", "", "schema JSON file; defaults to the schema stored in the data directory")
	batchSize := flag.Int("batch", 100, "documents per Kafka write")
	flushInterval := flag.Duration("flush-interval", time.Second, "longest a document waits before it is published")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var s *schema.Schema
	if *schemaPath != "" {
		s, err = schema.LoadFile(*schemaPath)
	} else {
		s, err = schema.Load(cfg.Index.DataDir)
	}
	if err != nil {
		slog.Error("failed to load schema", "error", err)
		os.Exit(1)
	}
	slog.Info("starting ingestion service", "port", cfg.Server.Port, "fields", s.NumFields())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("ingestion", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Documents,
		kafka.WithBatchSize(*batchSize),
		kafka.WithCompression(),
	)
	defer producer.Close()
	pub := publisher.New(producer, *batchSize)
	published := make(chan struct{})
	go func() {
		pub.FlushEvery(ctx, *flushInterval)
		close(published)
	}()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.Documents)

	checker := health.NewChecker()
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents published, %d messages written", pub.Published(), producer.Written()),
		}
	})

	mux := http.NewServeMux()
	handler.New(s, pub, nil).Register(mux)
	checker.Mount(mux)

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
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
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-published
	slog.Info("ingestion service stopped", "published", pub.Published())
}
