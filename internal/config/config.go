package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RawRoot     string
	CityTable   string

	RequestProfile string
	SearchEndpoint string
	RequestTimeout time.Duration
	CourtesyMin    time.Duration
	CourtesyMax    time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration

	Workers     int
	From        time.Time
	To          time.Time
	MaxDays     int
	Origin      string
	Destination string

	BatchSize int

	MetricsAddr       string
	NATSURL           string
	NATSSubjectPrefix string
	LogLevel          string
	Location          *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Time zone first: it anchors CRAWL_* dates
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := getenvDefault("PGDATABASE", "busfares")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.RawRoot = getenvDefault("RAW_ROOT", "data/raw/redbus")
	cfg.CityTable = getenvDefault("CITY_TABLE", "config/city_ids.json")
	cfg.RequestProfile = os.Getenv("REQUEST_PROFILE")
	cfg.SearchEndpoint = os.Getenv("SEARCH_ENDPOINT")

	var err error
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT_SEC", time.Second, 15); err != nil {
		return nil, err
	}
	if cfg.CourtesyMin, err = durationEnv("COURTESY_DELAY_MIN_MS", time.Millisecond, 5000); err != nil {
		return nil, err
	}
	if cfg.CourtesyMax, err = durationEnv("COURTESY_DELAY_MAX_MS", time.Millisecond, 10000); err != nil {
		return nil, err
	}
	if cfg.BackoffMin, err = durationEnv("RATE_LIMIT_BACKOFF_MIN_MS", time.Millisecond, 10000); err != nil {
		return nil, err
	}
	if cfg.BackoffMax, err = durationEnv("RATE_LIMIT_BACKOFF_MAX_MS", time.Millisecond, 20000); err != nil {
		return nil, err
	}
	if cfg.CourtesyMax < cfg.CourtesyMin || cfg.BackoffMax < cfg.BackoffMin {
		return nil, errors.New("delay maximums must not be below their minimums")
	}

	if cfg.Workers, err = positiveInt("CRAWL_WORKERS", 16); err != nil {
		return nil, err
	}
	if cfg.MaxDays, err = positiveInt("CRAWL_MAX_DAYS", 45); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = positiveInt("LOADER_BATCH_SIZE", 200); err != nil {
		return nil, err
	}
	if err := cfg.loadDates(time.Now().In(cfg.Location)); err != nil {
		return nil, err
	}
	cfg.Origin = strings.TrimSpace(os.Getenv("CRAWL_ORIGIN"))
	cfg.Destination = strings.TrimSpace(os.Getenv("CRAWL_DESTINATION"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty NATS_URL disables run events
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "fares")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	return cfg, nil
}

// loadDates resolves the crawl window: CRAWL_FROM/CRAWL_TO (YYYY-MM-DD) win,
// then CRAWL_YEAR/CRAWL_MONTH, then the current month.
func (c *Config) loadDates(now time.Time) error {
	from, to := os.Getenv("CRAWL_FROM"), os.Getenv("CRAWL_TO")
	if from != "" || to != "" {
		if from == "" || to == "" {
			return errors.New("CRAWL_FROM and CRAWL_TO must be set together")
		}
		f, err := time.Parse("2006-01-02", from)
		if err != nil {
			return fmt.Errorf("invalid CRAWL_FROM: %q", from)
		}
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return fmt.Errorf("invalid CRAWL_TO: %q", to)
		}
		c.From, c.To = f, t
		return nil
	}

	year, month := now.Year(), now.Month()
	if v := os.Getenv("CRAWL_YEAR"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 2000 {
			return fmt.Errorf("invalid CRAWL_YEAR: %q", v)
		}
		year = y
	}
	if v := os.Getenv("CRAWL_MONTH"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			return fmt.Errorf("invalid CRAWL_MONTH: %q", v)
		}
		month = time.Month(m)
	}
	c.From = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	c.To = c.From.AddDate(0, 1, -1)
	return nil
}

func positiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, unit time.Duration, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * unit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
