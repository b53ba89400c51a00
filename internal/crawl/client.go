package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"busfare-ingest/internal/fares"
	"busfare-ingest/internal/logger"
	"busfare-ingest/internal/rawstore"
)

const DefaultEndpoint = "https://www.redbus.pe/search/SearchV4Results"

type Outcome string

const (
	OutcomeSaved          Outcome = "saved"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeBlocked        Outcome = "blocked"
	OutcomeHTTPError      Outcome = "http_error"
	OutcomeNetworkError   Outcome = "network_error"
	OutcomeInvalidPayload Outcome = "invalid_payload"
	OutcomeFailed         Outcome = "failed"
)

// Result is the classified outcome of one task. Only OutcomeSaved writes a file.
type Result struct {
	Task        fares.Task
	Outcome     Outcome
	StatusCode  int
	Inventories int
	Err         error
	Elapsed     time.Duration
}

type ClientConfig struct {
	Endpoint string
	Headers  map[string]string
	Cookies  map[string]string
	Body     any // sent as JSON when non-nil
	Timeout  time.Duration

	// slept after every request, whatever its outcome
	CourtesyMin time.Duration
	CourtesyMax time.Duration
	// slept after a 429 before the courtesy delay
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Client performs one search request per task and stores 2xx bodies verbatim.
type Client struct {
	cfg   ClientConfig
	http  *http.Client
	log   logger.Logger
	body  []byte
	write func(path string, body []byte) error
	sleep func(ctx context.Context, d time.Duration)
}

func NewClient(cfg ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   log,
		write: rawstore.Write,
		sleep: sleepCtx,
	}
	if cfg.Body != nil {
		b, err := json.Marshal(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		c.body = b
	}
	return c, nil
}

// Query builds the search parameters for a task.
func Query(t fares.Task) url.Values {
	q := url.Values{}
	q.Set("fromCity", strconv.FormatInt(t.OriginID, 10))
	q.Set("toCity", strconv.FormatInt(t.DestinationID, 10))
	q.Set("src", t.Origin)
	q.Set("dst", t.Destination)
	q.Set("DOJ", t.DOJ())
	q.Set("sectionId", "0")
	q.Set("groupId", "0")
	q.Set("limit", "20")
	q.Set("offset", "0")
	q.Set("sort", "0")
	q.Set("sortOrder", "0")
	q.Set("meta", "true")
	q.Set("returnSearch", "0")
	return q
}

func (c *Client) Fetch(ctx context.Context, t fares.Task) Result {
	start := time.Now()
	res := c.fetch(ctx, t)
	res.Task = t
	res.Elapsed = time.Since(start)

	log := c.log.With("origin", t.Origin, "destination", t.Destination, "date", t.Date.Format("2006-01-02"),
		"outcome", string(res.Outcome), "status", res.StatusCode, "elapsed", res.Elapsed)
	switch res.Outcome {
	case OutcomeSaved:
		if res.Inventories == 0 {
			log.Warn("no trips in response", "path", t.OutputPath)
		} else {
			log.Info("response saved", "path", t.OutputPath, "inventories", res.Inventories)
		}
	case OutcomeRateLimited:
		log.Warn("rate limited, backing off")
		c.sleep(ctx, jitter(c.cfg.BackoffMin, c.cfg.BackoffMax))
	case OutcomeBlocked:
		log.Error("request blocked, address may be banned")
	default:
		log.Error("request failed", "error", res.Err)
	}

	c.sleep(ctx, jitter(c.cfg.CourtesyMin, c.cfg.CourtesyMax))
	return res
}

func (c *Client) fetch(ctx context.Context, t fares.Task) Result {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: fmt.Errorf("parse endpoint: %w", err)}
	}
	u.RawQuery = Query(t).Encode()

	var body io.Reader
	if c.body != nil {
		body = bytes.NewReader(c.body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range c.cfg.Cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeNetworkError, Err: describeNetErr(err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)

	res := Result{StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		res.Outcome = OutcomeRateLimited
		return res
	case resp.StatusCode == http.StatusForbidden:
		res.Outcome = OutcomeBlocked
		return res
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.Outcome = OutcomeHTTPError
		res.Err = fmt.Errorf("http status %d", resp.StatusCode)
		return res
	}
	if err != nil {
		res.Outcome = OutcomeNetworkError
		res.Err = fmt.Errorf("read body: %w", describeNetErr(err))
		return res
	}
	if !json.Valid(raw) {
		res.Outcome = OutcomeInvalidPayload
		res.Err = errors.New("response body is not valid JSON")
		return res
	}

	var peek struct {
		Inventories []json.RawMessage `json:"inventories"`
	}
	if json.Unmarshal(raw, &peek) == nil {
		res.Inventories = len(peek.Inventories)
	}
	if err := c.write(t.OutputPath, raw); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	res.Outcome = OutcomeSaved
	return res
}

func describeNetErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("timeout: %w", err)
	}
	return err
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
