package metrics

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"busfare-ingest/internal/logger"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestCollectorRecords(t *testing.T) {
	c := NewCollector()
	c.RequestDone("saved", 200*time.Millisecond)
	c.RequestDone("rate_limited", time.Second)
	c.TasksPending(7)
	c.BatchDone("committed", time.Second)
	c.FileDone("loaded")
	c.ItemsDone("loaded", 12)
	c.TripsCreated(3)
	c.SnapshotsInserted(12)
	c.NATSSetConnected(true)

	out := scrape(t, c)
	for _, want := range []string{
		`crawl_requests_total{outcome="saved"} 1`,
		`crawl_requests_total{outcome="rate_limited"} 1`,
		`crawl_tasks_done_total 2`,
		`crawl_tasks_pending 7`,
		`loader_batches_total{result="committed"} 1`,
		`loader_files_total{result="loaded"} 1`,
		`loader_items_total{result="loaded"} 12`,
		`loader_trips_created_total 3`,
		`loader_snapshots_total 12`,
		`events_nats_connected 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

type lockedLogger struct {
	mu     sync.Mutex
	levels []string
}

func (l *lockedLogger) add(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels = append(l.levels, level)
}

func (l *lockedLogger) has(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, lv := range l.levels {
		if lv == level {
			return true
		}
	}
	return false
}

func (l *lockedLogger) Debug(string, ...interface{})      { l.add("debug") }
func (l *lockedLogger) Info(string, ...interface{})       { l.add("info") }
func (l *lockedLogger) Warn(string, ...interface{})       { l.add("warn") }
func (l *lockedLogger) Error(string, ...interface{})      { l.add("error") }
func (l *lockedLogger) Fatal(string, ...interface{})      { l.add("fatal") }
func (l *lockedLogger) With(...interface{}) logger.Logger { return l }

func TestServeLogsListenError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	lg := &lockedLogger{}
	srv := NewCollector().Serve(busy.Addr().String(), lg)
	defer srv.Shutdown(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for !lg.has("error") {
		if time.Now().After(deadline) {
			t.Fatalf("listen error not logged")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !lg.has("info") {
		t.Fatalf("listen address not logged")
	}
}
