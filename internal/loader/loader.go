// Package loader drains the raw store into the relational history, one
// transaction per batch of files.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"busfare-ingest/internal/catalog"
	"busfare-ingest/internal/extract"
	"busfare-ingest/internal/fares"
	"busfare-ingest/internal/logger"
	"busfare-ingest/internal/rawstore"

	"github.com/google/uuid"
)

const DefaultBatchSize = 200

// Tx is the write surface of one batch.
type Tx interface {
	catalog.Store
	CreateTrip(ctx context.Context, companyID, routeID int64, t fares.Trip) (id int64, created bool, err error)
	InsertSnapshot(ctx context.Context, tripID int64, s fares.Snapshot) (bool, error)
	InsertStopPoints(ctx context.Context, tripID int64, stops []fares.StopPoint) error
	LinkAmenity(ctx context.Context, tripID, amenityID int64) error
	RecordError(ctx context.Context, file string, item int, message string) error
	MarkLoaded(ctx context.Context, file, digest string, items int) error
	Commit() error
	Rollback() error
}

type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// LoadedFiles maps committed raw file paths to the digest they were loaded with.
	LoadedFiles(ctx context.Context) (map[string]string, error)
}

type Metrics interface {
	FileDone(result string)
	BatchDone(result string, d time.Duration)
	ItemsDone(result string, n int)
	TripsCreated(n int)
	SnapshotsInserted(n int)
}

// BatchEvent describes a committed batch.
type BatchEvent struct {
	RunID        string
	Batch        int
	Files        int
	Items        int
	TripsCreated int
	Snapshots    int
	Errors       int
	CommittedAt  time.Time
}

type Notifier interface {
	BatchCommitted(ctx context.Context, ev BatchEvent) error
}

type Option func(*Engine)

func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithClock sets the clock that stamps snapshots.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// Engine is single-threaded: the cache and the open transaction are not
// safe for concurrent use.
type Engine struct {
	store     Store
	cache     *catalog.Cache
	log       logger.Logger
	batchSize int
	now       func() time.Time
	metrics   Metrics
	notifier  Notifier
}

func New(store Store, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		cache:     catalog.New(),
		log:       log,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type Summary struct {
	RunID         string
	Files         int // pending files considered by this run
	AlreadyLoaded int
	Batches       int
	Committed     int
	RolledBack    int
	Items         int
	ItemsSkipped  int
	TripsCreated  int
	Snapshots     int
	LedgerEntries int
	FilesUnread   int
	CacheHits     int
	CacheMisses   int
	Elapsed       time.Duration
}

// batchStats is only merged into the Summary when its batch commits.
type batchStats struct {
	files, items, skipped, trips, snapshots, ledger, unread int
}

func (s *Summary) add(b batchStats) {
	s.Items += b.items
	s.ItemsSkipped += b.skipped
	s.TripsCreated += b.trips
	s.Snapshots += b.snapshots
	s.LedgerEntries += b.ledger
	s.FilesUnread += b.unread
}

// Run loads every raw file below root whose current content no earlier run
// committed. A file re-crawled to the same path loads again and appends
// snapshots.
func (e *Engine) Run(ctx context.Context, root string) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	log := e.log.With("run_id", sum.RunID)

	files, err := rawstore.List(root)
	if err != nil {
		return sum, err
	}
	loaded, err := e.store.LoadedFiles(ctx)
	if err != nil {
		return sum, fmt.Errorf("loaded files: %w", err)
	}
	pending := files[:0:0]
	for _, f := range files {
		if prev, ok := loaded[filepath.ToSlash(f)]; ok {
			// unreadable files stay pending so loadFile can ledger them
			if d, err := rawstore.FileDigest(f); err == nil && d == prev {
				sum.AlreadyLoaded++
				continue
			}
		}
		pending = append(pending, f)
	}
	sum.Files = len(pending)
	log.Info("loader starting", "root", root, "pending", len(pending), "already_loaded", sum.AlreadyLoaded, "batch_size", e.batchSize)

	for i := 0; i < len(pending); i += e.batchSize {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}
		end := min(i+e.batchSize, len(pending))
		batch := i/e.batchSize + 1
		sum.Batches++

		bStart := time.Now()
		st, err := e.runBatch(ctx, pending[i:end])
		elapsed := time.Since(bStart)
		if err != nil {
			sum.RolledBack++
			e.observeBatch("rolled_back", elapsed, end-i, "failed")
			log.Error("batch rolled back", "batch", batch, "files", end-i, "error", err)
			continue
		}
		sum.Committed++
		sum.add(st)
		e.observeBatch("committed", elapsed, st.files, "loaded")
		if e.metrics != nil {
			e.metrics.ItemsDone("loaded", st.items)
			e.metrics.ItemsDone("skipped", st.skipped)
			e.metrics.TripsCreated(st.trips)
			e.metrics.SnapshotsInserted(st.snapshots)
		}
		log.Info("batch committed", "batch", batch, "files", st.files, "items", st.items,
			"trips_created", st.trips, "snapshots", st.snapshots, "ledger", st.ledger, "elapsed", elapsed)

		if e.notifier != nil {
			ev := BatchEvent{
				RunID: sum.RunID, Batch: batch, Files: st.files, Items: st.items,
				TripsCreated: st.trips, Snapshots: st.snapshots, Errors: st.ledger,
				CommittedAt: e.now().UTC(),
			}
			if err := e.notifier.BatchCommitted(ctx, ev); err != nil {
				log.Warn("batch event not published", "batch", batch, "error", err)
			}
		}
	}

	sum.CacheHits, sum.CacheMisses = e.cache.Stats()
	sum.Elapsed = time.Since(start)
	log.Info("loader finished", "files", sum.Files, "committed", sum.Committed, "rolled_back", sum.RolledBack,
		"items", sum.Items, "trips_created", sum.TripsCreated, "snapshots", sum.Snapshots,
		"ledger", sum.LedgerEntries, "cache_entries", e.cache.Len(), "elapsed", sum.Elapsed)
	return sum, nil
}

func (e *Engine) observeBatch(result string, d time.Duration, files int, fileResult string) {
	if e.metrics == nil {
		return
	}
	e.metrics.BatchDone(result, d)
	for range files {
		e.metrics.FileDone(fileResult)
	}
}

func (e *Engine) runBatch(ctx context.Context, files []string) (st batchStats, err error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return st, err
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		e.cache.Forget()
	}()

	for _, f := range files {
		if err := e.loadFile(ctx, tx, f, &st); err != nil {
			return st, fmt.Errorf("%s: %w", f, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("commit: %w", err)
	}
	e.cache.Commit()
	return st, nil
}

// loadFile returns only store errors; bad input goes to the ledger.
func (e *Engine) loadFile(ctx context.Context, tx Tx, path string, st *batchStats) error {
	key := filepath.ToSlash(path)
	raw, err := os.ReadFile(path)
	if err != nil {
		// left unmarked so the next run retries it
		st.unread++
		st.ledger++
		return tx.RecordError(ctx, key, -1, "read: "+err.Error())
	}

	p, err := extract.Parse(path, raw, e.now)
	if err != nil {
		st.ledger++
		if err := tx.RecordError(ctx, key, -1, err.Error()); err != nil {
			return err
		}
		st.files++
		return tx.MarkLoaded(ctx, key, rawstore.Digest(raw), 0)
	}

	for _, ie := range p.Errors {
		st.ledger++
		if err := tx.RecordError(ctx, key, ie.Index, ie.Err.Error()); err != nil {
			return err
		}
	}
	st.skipped += p.Skipped + len(p.Errors)

	if len(p.Items) > 0 {
		routeID, err := e.cache.Route(ctx, tx, p.Origin, p.Destination)
		if err != nil {
			return err
		}
		for _, it := range p.Items {
			if err := e.loadItem(ctx, tx, routeID, it, st); err != nil {
				return err
			}
		}
	}
	st.files++
	return tx.MarkLoaded(ctx, key, rawstore.Digest(raw), len(p.Items))
}

func (e *Engine) loadItem(ctx context.Context, tx Tx, routeID int64, it fares.Item, st *batchStats) error {
	companyID, err := e.cache.Company(ctx, tx, it.Company)
	if err != nil {
		return err
	}
	tripID, created, err := tx.CreateTrip(ctx, companyID, routeID, it.Trip)
	if err != nil {
		return err
	}
	if created {
		st.trips++
		if err := tx.InsertStopPoints(ctx, tripID, it.Stops); err != nil {
			return err
		}
		for _, code := range it.Amenities {
			amenityID, err := e.cache.Amenity(ctx, tx, code, extract.AmenityDescription(code))
			if err != nil {
				return err
			}
			if err := tx.LinkAmenity(ctx, tripID, amenityID); err != nil {
				return err
			}
		}
	}
	inserted, err := tx.InsertSnapshot(ctx, tripID, it.Snapshot)
	if err != nil {
		return err
	}
	if inserted {
		st.snapshots++
	}
	st.items++
	return nil
}
