package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"busfare-ingest/internal/config"
	"busfare-ingest/internal/db"
	"busfare-ingest/internal/loader"
	"busfare-ingest/internal/logger"
	"busfare-ingest/internal/metrics"
	"busfare-ingest/internal/publisher"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	zl := logger.NewLogger(cfg.LogLevel)
	defer zl.Sync()
	lg := logger.Logger(zl).With("component", "loader")

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		lg.Fatal("db open", "dsn", db.Redact(cfg.DatabaseURL), "error", err)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		lg.Fatal("db ping", "dsn", db.Redact(cfg.DatabaseURL), "error", err)
	}
	store := db.NewStore(sqlDB)
	if err := db.EnsureSchema(ctx, store); err != nil {
		lg.Fatal("ensure schema", "error", err)
	}
	lg.Info("database ready", "dsn", db.Redact(cfg.DatabaseURL))

	opts := []loader.Option{loader.WithBatchSize(cfg.BatchSize)}
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector()
		srv := mcol.Serve(cfg.MetricsAddr, lg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		opts = append(opts, loader.WithMetrics(mcol))
	}
	// Run events are optional
	if cfg.NATSURL != "" {
		var pm publisher.PublisherMetrics
		if mcol != nil {
			pm = mcol
		}
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, "busfare-loader", pm, lg)
		if err != nil {
			lg.Fatal("nats connect", "error", err)
		}
		defer pub.Close()
		opts = append(opts, loader.WithNotifier(batchNotifier{pub}))
	}

	sum, err := loader.New(storeAdapter{store}, lg, opts...).Run(ctx, cfg.RawRoot)
	if err != nil {
		lg.Error("loader stopped", "error", err)
	}
	lg.Info("load summary", "run_id", sum.RunID, "files", sum.Files, "already_loaded", sum.AlreadyLoaded,
		"committed", sum.Committed, "rolled_back", sum.RolledBack, "items", sum.Items,
		"trips_created", sum.TripsCreated, "snapshots", sum.Snapshots, "ledger", sum.LedgerEntries,
		"cache_hits", sum.CacheHits, "cache_misses", sum.CacheMisses, "elapsed", sum.Elapsed)
}

// storeAdapter adapts *db.Store to loader.Store.
type storeAdapter struct{ s *db.Store }

func (a storeAdapter) Begin(ctx context.Context) (loader.Tx, error) {
	tx, err := a.s.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (a storeAdapter) LoadedFiles(ctx context.Context) (map[string]string, error) {
	return a.s.LoadedFiles(ctx)
}

// batchNotifier adapts the NATS publisher to loader.Notifier.
type batchNotifier struct{ p *publisher.NATSPublisher }

func (n batchNotifier) BatchCommitted(_ context.Context, ev loader.BatchEvent) error {
	return n.p.PublishLoadBatch(publisher.LoadBatch{
		RunID:        ev.RunID,
		Batch:        ev.Batch,
		Files:        ev.Files,
		Items:        ev.Items,
		TripsCreated: ev.TripsCreated,
		Snapshots:    ev.Snapshots,
		Errors:       ev.Errors,
		CommittedAt:  ev.CommittedAt,
	})
}
