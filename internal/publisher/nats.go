package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"busfare-ingest/internal/logger"

	"github.com/nats-io/nats.go"
)

// NATSPublisher announces finished crawl runs and committed loader batches.
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	metrics PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, prefix, clientName string, m PublisherMetrics, lg logger.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, connOptions(clientName, m, lg)...)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: subjectPrefix(prefix), metrics: m}, nil
}

// connOptions reports connection state changes to the metrics and the log.
func connOptions(clientName string, m PublisherMetrics, lg logger.Logger) []nats.Option {
	setConnected := func(up bool) {
		if m != nil {
			m.NATSSetConnected(up)
		}
	}
	return []nats.Option{
		nats.Name(clientName),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			setConnected(false)
			lg.Warn("nats disconnected", "client", clientName, "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			setConnected(true)
			lg.Info("nats reconnected", "client", clientName)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			setConnected(false)
			lg.Info("nats closed", "client", clientName)
		}),
	}
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

type CrawlCompleted struct {
	RunID     string         `json:"runId"`
	Tasks     int            `json:"tasks"`
	Saved     int            `json:"saved"`
	Failed    int            `json:"failed"`
	Outcomes  map[string]int `json:"outcomes"`
	StartedAt time.Time      `json:"startedAt"`
	ElapsedMs int64          `json:"elapsedMs"`
}

type LoadBatch struct {
	RunID        string    `json:"runId"`
	Batch        int       `json:"batch"`
	Files        int       `json:"files"`
	Items        int       `json:"items"`
	TripsCreated int       `json:"tripsCreated"`
	Snapshots    int       `json:"snapshots"`
	Errors       int       `json:"errors"`
	CommittedAt  time.Time `json:"committedAt"`
}

func (p *NATSPublisher) PublishCrawlCompleted(msg CrawlCompleted) error {
	return p.publish(CrawlSubject(p.prefix), msg)
}

func (p *NATSPublisher) PublishLoadBatch(msg LoadBatch) error {
	return p.publish(LoadSubject(p.prefix), msg)
}

// CrawlSubject is <prefix>.crawl.completed.
func CrawlSubject(prefix string) string { return subjectPrefix(prefix) + ".crawl.completed" }

// LoadSubject is <prefix>.load.batch.
func LoadSubject(prefix string) string { return subjectPrefix(prefix) + ".load.batch" }

func (p *NATSPublisher) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// subjectPrefix keeps dots as separators but sanitizes each token.
func subjectPrefix(prefix string) string {
	parts := strings.Split(strings.Trim(prefix, ". "), ".")
	for i, p := range parts {
		parts[i] = subjectToken(p)
	}
	return strings.Join(parts, ".")
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
