package crawl

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"busfare-ingest/internal/fares"
	"busfare-ingest/internal/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 16

type Fetcher interface {
	Fetch(ctx context.Context, t fares.Task) Result
}

type Metrics interface {
	RequestDone(outcome string, d time.Duration)
	TasksPending(n int)
}

type Notifier interface {
	CrawlCompleted(ctx context.Context, s Summary) error
}

type Summary struct {
	RunID    string
	Tasks    int
	Saved    int
	Failed   int
	Outcomes map[Outcome]int
	Started  time.Time
	Elapsed  time.Duration
	Results  []Result
}

type OrchestratorOption func(*Orchestrator)

// WithProgressEvery logs a progress line every n completed tasks.
func WithProgressEvery(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.progressEvery = n
		}
	}
}

func WithCrawlMetrics(m Metrics) OrchestratorOption { return func(o *Orchestrator) { o.metrics = m } }

func WithCrawlNotifier(n Notifier) OrchestratorOption { return func(o *Orchestrator) { o.notifier = n } }

// Orchestrator runs tasks through a Fetcher with bounded concurrency. Tasks
// never cancel each other; failures stay in their own Result.
type Orchestrator struct {
	fetcher       Fetcher
	workers       int
	log           logger.Logger
	metrics       Metrics
	notifier      Notifier
	progressEvery int
}

func NewOrchestrator(f Fetcher, workers int, log logger.Logger, opts ...OrchestratorOption) *Orchestrator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	o := &Orchestrator{fetcher: f, workers: workers, log: log, progressEvery: 50}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Run(ctx context.Context, tasks []fares.Task) Summary {
	sum := Summary{
		RunID:    uuid.NewString(),
		Tasks:    len(tasks),
		Outcomes: make(map[Outcome]int),
		Started:  time.Now().UTC(),
	}
	log := o.log.With("run_id", sum.RunID)
	log.Info("crawl starting", "tasks", len(tasks), "workers", o.workers)

	results := make([]Result, len(tasks))
	var done atomic.Int64
	if o.metrics != nil {
		o.metrics.TasksPending(len(tasks))
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, t := range tasks {
		g.Go(func() error {
			results[i] = o.runOne(ctx, t)
			n := done.Add(1)
			if o.metrics != nil {
				o.metrics.RequestDone(string(results[i].Outcome), results[i].Elapsed)
				o.metrics.TasksPending(len(tasks) - int(n))
			}
			if n%int64(o.progressEvery) == 0 || int(n) == len(tasks) {
				log.Info("crawl progress", "done", n, "total", len(tasks))
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		sum.Outcomes[r.Outcome]++
		if r.Outcome == OutcomeSaved {
			sum.Saved++
		} else {
			sum.Failed++
		}
	}
	sum.Results = results
	sum.Elapsed = time.Since(sum.Started)
	log.Info("crawl finished", "tasks", sum.Tasks, "saved", sum.Saved, "failed", sum.Failed, "elapsed", sum.Elapsed)

	if o.notifier != nil {
		if err := o.notifier.CrawlCompleted(ctx, sum); err != nil {
			log.Warn("crawl event not published", "error", err)
		}
	}
	return sum
}

// runOne turns a panicking fetch into a failed Result.
func (o *Orchestrator) runOne(ctx context.Context, t fares.Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("task panicked", "origin", t.Origin, "destination", t.Destination,
				"date", t.Date.Format("2006-01-02"), "panic", r)
			res = Result{Task: t, Outcome: OutcomeFailed, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := ctx.Err(); err != nil {
		return Result{Task: t, Outcome: OutcomeFailed, Err: err}
	}
	return o.fetcher.Fetch(ctx, t)
}
