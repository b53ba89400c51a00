package metrics

import (
	"errors"
	"net/http"
	"time"

	"busfare-ingest/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	CrawlRequests  *prometheus.CounterVec // outcome label
	CrawlDuration  prometheus.Histogram
	CrawlPending   prometheus.Gauge
	CrawlTasksDone prometheus.Counter
	CrawlWorkers   prometheus.Gauge

	LoaderFiles     *prometheus.CounterVec // result label: loaded|failed
	LoaderBatches   *prometheus.CounterVec // result label: committed|rolled_back
	LoaderItems     *prometheus.CounterVec // result label: loaded|skipped
	LoaderTrips     prometheus.Counter
	LoaderSnapshots prometheus.Counter
	BatchDuration   prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		CrawlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_requests_total",
			Help: "Search requests by classified outcome.",
		}, []string{"outcome"}),
		CrawlDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawl_request_duration_seconds",
			Help:    "Duration of one search request, excluding courtesy delays.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		CrawlPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_tasks_pending",
			Help: "Tasks of the current crawl not yet finished.",
		}),
		CrawlTasksDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawl_tasks_done_total",
			Help: "Crawl tasks finished, whatever the outcome.",
		}),
		CrawlWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_workers",
			Help: "Configured crawl pool width.",
		}),
		LoaderFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loader_files_total",
			Help: "Raw files processed by the loader.",
		}, []string{"result"}),
		LoaderBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loader_batches_total",
			Help: "Loader batches by result.",
		}, []string{"result"}),
		LoaderItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loader_items_total",
			Help: "Inventory items loaded or skipped.",
		}, []string{"result"}),
		LoaderTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loader_trips_created_total",
			Help: "Trip definitions created.",
		}),
		LoaderSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loader_snapshots_total",
			Help: "History snapshots inserted.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "loader_batch_duration_seconds",
			Help:    "Duration of one loader batch transaction.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_nats_published_total",
			Help: "Total NATS run events published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "events_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "events_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
	}

	reg.MustRegister(
		c.CrawlRequests, c.CrawlDuration, c.CrawlPending, c.CrawlTasksDone, c.CrawlWorkers,
		c.LoaderFiles, c.LoaderBatches, c.LoaderItems, c.LoaderTrips, c.LoaderSnapshots, c.BatchDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, lg logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server error", "addr", addr, "error", err)
		}
	}()
	lg.Info("metrics listening", "addr", addr)
	return srv
}

// crawl side

func (c *Collector) RequestDone(outcome string, d time.Duration) {
	c.CrawlRequests.WithLabelValues(outcome).Inc()
	c.CrawlDuration.Observe(d.Seconds())
	c.CrawlTasksDone.Inc()
}

func (c *Collector) TasksPending(n int) { c.CrawlPending.Set(float64(n)) }

// loader side

func (c *Collector) FileDone(result string) { c.LoaderFiles.WithLabelValues(result).Inc() }

func (c *Collector) BatchDone(result string, d time.Duration) {
	c.LoaderBatches.WithLabelValues(result).Inc()
	c.BatchDuration.Observe(d.Seconds())
}

func (c *Collector) ItemsDone(result string, n int) { c.LoaderItems.WithLabelValues(result).Add(float64(n)) }

func (c *Collector) TripsCreated(n int) { c.LoaderTrips.Add(float64(n)) }

func (c *Collector) SnapshotsInserted(n int) { c.LoaderSnapshots.Add(float64(n)) }

// publisher side

func (c *Collector) NATSPublishedInc() { c.NATSPublished.Inc() }

func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
