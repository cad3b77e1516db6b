// Command indexer builds segments for the search service. It loads JSON-lines
// documents from a file or stdin and, with -serve, keeps running to accept
// documents over HTTP and from the Kafka documents topic, flushing segments
// on a timer.
//
// Usage:
//
//	indexer -schema schema.json -input docs.jsonl
//	indexer -serve -kafka
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion/handler"
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
	input := flag.String("input", "", "JSON-lines file to index, or - for stdin")
	strict := flag.Bool("strict", false, "stop at the first invalid record")
	serve := flag.Bool("serve", false, "keep running and accept documents over HTTP")
	fromKafka := flag.Bool("kafka", false, "with -serve, also index documents from the Kafka documents topic")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	s, err := loadSchema(*schemaPath, cfg.Index.DataDir)
	if err != nil {
		slog.Error("failed to load schema", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := indexer.NewEngine(cfg.Index, s)
	if err != nil {
		slog.Error("failed to open index for writing", "error", err)
		os.Exit(1)
	}
	slog.Info("starting indexer", "data_dir", cfg.Index.DataDir, "segments", engine.NumSegments())

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled && *serve {
		shutdownMetrics := metrics.StartServer("indexer", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
	}

	engine.OnFlush(func(info indexer.FlushInfo) {
		m.DocsIndexedTotal.Add(float64(info.Docs))
		m.IndexFlushesTotal.WithLabelValues("ok").Inc()
		if collector != nil {
			collector.Track(analytics.IndexEvent{
				Type:       analytics.EventIndexFlush,
				Segment:    info.Segment,
				Docs:       info.Docs,
				Generation: info.Generation,
				LatencyMs:  info.Duration.Milliseconds(),
				Timestamp:  time.Now().UTC(),
			})
		}
	})
	sink := ingestion.IndexInto(engine)

	exitCode := 0
	if *input != "" {
		if err := loadInput(ctx, *input, s, sink, *strict); err != nil {
			slog.Error("loading input failed", "error", err)
			exitCode = 1
		}
	}
	if *serve && exitCode == 0 {
		if err := run(ctx, cfg, m, engine, s, sink, *fromKafka); err != nil {
			slog.Error("indexer server error", "error", err)
			exitCode = 1
		}
	}

	if err := engine.Flush(); err != nil {
		m.IndexFlushesTotal.WithLabelValues("error").Inc()
		slog.Error("final flush failed", "error", err)
		exitCode = 1
	}
	if err := engine.Close(); err != nil {
		slog.Error("closing index failed", "error", err)
		exitCode = 1
	}
	slog.Info("indexer stopped", "segments", engine.NumSegments(), "generation", engine.Generation())
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func loadSchema(path, dataDir string) (*schema.Schema, error) {
	if path != "" {
		return schema.LoadFile(path)
	}
	s, err := schema.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("no -schema given and none stored in %s: %w", dataDir, err)
	}
	return s, nil
}

func loadInput(ctx context.Context, path string, s *schema.Schema, sink ingestion.Sink, strict bool) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	start := time.Now()
	stats, err := ingestion.LoadJSONL(ctx, r, s, sink, ingestion.LoadOptions{Strict: strict})
	slog.Info("input loaded",
		"lines", stats.Lines,
		"indexed", stats.Indexed,
		"rejected", stats.Rejected,
		"elapsed", time.Since(start),
	)
	return err
}

func run(ctx context.Context, cfg *config.Config, m *metrics.Metrics, engine *indexer.Engine, s *schema.Schema, sink ingestion.Sink, fromKafka bool) error {
	engine.StartFlushLoop(ctx)

	var consumed consumer.Stats
	if fromKafka {
		c := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Documents,
			consumer.HandleMessage(s, sink, &consumed),
			kafka.WithGroup(cfg.Kafka.IndexerGroup),
			kafka.FromEarliest(),
		)
		go func() {
			if err := c.Start(ctx); err != nil {
				slog.Error("document consumer error", "error", err)
			}
		}()
		slog.Info("consuming documents", "topic", cfg.Kafka.Topics.Documents, "group", cfg.Kafka.IndexerGroup)
	}

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status: health.StatusUp,
			Message: fmt.Sprintf("%d segments, %d consumed, %d rejected",
				engine.NumSegments(), consumed.Indexed.Load(), consumed.Rejected.Load()),
		}
	})

	mux := http.NewServeMux()
	ingesthandler.New(s, sink, engine).Register(mux)
	checker.Mount(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux,
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

	slog.Info("indexer listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
