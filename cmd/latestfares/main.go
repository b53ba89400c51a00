package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"busfare-ingest/internal/config"
	"busfare-ingest/internal/db"
	"busfare-ingest/internal/logger"
)

// latestfares prints the latest known fare of every trip as JSON lines.
func main() {
	origin := flag.String("origin", "", "only trips from this origin city")
	destination := flag.String("destination", "", "only trips to this destination city")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	zl := logger.NewLogger(cfg.LogLevel)
	defer zl.Sync()
	lg := logger.Logger(zl).With("component", "latestfares")

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
	g, err := db.OpenGorm(sqlDB)
	if err != nil {
		lg.Fatal("open gorm", "error", err)
	}

	rows, err := db.LatestFares(ctx, g, db.FaresFilter{Origin: *origin, Destination: *destination})
	if err != nil {
		lg.Fatal("latest fares", "error", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			lg.Fatal("write output", "error", err)
		}
	}
	lg.Info("latest fares written", "trips", len(rows), "origin", *origin, "destination", *destination)
}
