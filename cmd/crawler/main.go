package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"busfare-ingest/internal/cities"
	"busfare-ingest/internal/config"
	"busfare-ingest/internal/crawl"
	"busfare-ingest/internal/logger"
	"busfare-ingest/internal/metrics"
	"busfare-ingest/internal/publisher"
	"busfare-ingest/internal/rawstore"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	zl := logger.NewLogger(cfg.LogLevel)
	defer zl.Sync()
	lg := logger.Logger(zl).With("component", "crawler")

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	table, err := cities.Load(cfg.CityTable)
	if err != nil {
		lg.Fatal("city table", "path", cfg.CityTable, "error", err)
	}
	profile, err := config.LoadProfile(cfg.RequestProfile)
	if err != nil {
		lg.Fatal("request profile", "error", err)
	}

	r := crawl.DateRange{From: cfg.From, To: cfg.To}
	if err := r.Validate(cfg.MaxDays); err != nil {
		lg.Fatal("crawl window", "from", cfg.From.Format("2006-01-02"), "to", cfg.To.Format("2006-01-02"), "error", err)
	}
	tasks, err := crawl.Enumerate(table, r, cfg.RawRoot, rawstore.Exists,
		crawl.Filter{Origin: cfg.Origin, Destination: cfg.Destination})
	if err != nil {
		lg.Fatal("enumerate tasks", "error", err)
	}
	lg.Info("tasks enumerated", "cities", table.Len(), "from", cfg.From.Format("2006-01-02"),
		"to", cfg.To.Format("2006-01-02"), "pending", len(tasks))
	if len(tasks) == 0 {
		lg.Info("nothing to fetch")
		return
	}

	endpoint := cfg.SearchEndpoint
	if endpoint == "" {
		endpoint = profile.Endpoint
	}
	var body any
	if profile.Body != nil {
		body = profile.Body
	}
	client, err := crawl.NewClient(crawl.ClientConfig{
		Endpoint:    endpoint,
		Headers:     profile.Headers,
		Cookies:     profile.Cookies,
		Body:        body,
		Timeout:     cfg.RequestTimeout,
		CourtesyMin: cfg.CourtesyMin,
		CourtesyMax: cfg.CourtesyMax,
		BackoffMin:  cfg.BackoffMin,
		BackoffMax:  cfg.BackoffMax,
	}, lg)
	if err != nil {
		lg.Fatal("fetch client", "error", err)
	}

	var opts []crawl.OrchestratorOption
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector()
		mcol.CrawlWorkers.Set(float64(cfg.Workers))
		srv := mcol.Serve(cfg.MetricsAddr, lg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		opts = append(opts, crawl.WithCrawlMetrics(mcol))
	}
	// Run events are optional
	if cfg.NATSURL != "" {
		pub := connectNATS(cfg, mcol, lg)
		defer pub.Close()
		opts = append(opts, crawl.WithCrawlNotifier(crawlNotifier{pub}))
	}

	sum := crawl.NewOrchestrator(client, cfg.Workers, lg, opts...).Run(ctx, tasks)
	outcomes := make([]any, 0, 2*len(sum.Outcomes))
	for o, n := range sum.Outcomes {
		outcomes = append(outcomes, string(o), n)
	}
	lg.Info("crawl summary", append([]any{"run_id", sum.RunID, "saved", sum.Saved, "failed", sum.Failed,
		"elapsed", sum.Elapsed}, outcomes...)...)
}

func connectNATS(cfg *config.Config, m *metrics.Collector, lg logger.Logger) *publisher.NATSPublisher {
	var pm publisher.PublisherMetrics
	if m != nil {
		pm = m
	}
	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, "busfare-crawler", pm, lg)
	if err != nil {
		lg.Fatal("nats connect", "error", err)
	}
	return pub
}

// crawlNotifier adapts the NATS publisher to crawl.Notifier.
type crawlNotifier struct{ p *publisher.NATSPublisher }

func (n crawlNotifier) CrawlCompleted(_ context.Context, s crawl.Summary) error {
	outcomes := make(map[string]int, len(s.Outcomes))
	for o, c := range s.Outcomes {
		outcomes[string(o)] = c
	}
	return n.p.PublishCrawlCompleted(publisher.CrawlCompleted{
		RunID:     s.RunID,
		Tasks:     s.Tasks,
		Saved:     s.Saved,
		Failed:    s.Failed,
		Outcomes:  outcomes,
		StartedAt: s.Started,
		ElapsedMs: s.Elapsed.Milliseconds(),
	})
}
