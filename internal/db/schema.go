package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS routes (
		id          BIGSERIAL PRIMARY KEY,
		origin      TEXT NOT NULL,
		destination TEXT NOT NULL,
		UNIQUE (origin, destination)
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		id           BIGSERIAL PRIMARY KEY,
		name         TEXT NOT NULL,
		operator_id  BIGINT UNIQUE,
		rating       DOUBLE PRECISION,
		logo_url     TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS companies_name_no_operator
		ON companies (name) WHERE operator_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS amenities (
		id          BIGSERIAL PRIMARY KEY,
		code        INTEGER NOT NULL UNIQUE,
		description TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trips (
		id             BIGSERIAL PRIMARY KEY,
		company_id     BIGINT NOT NULL REFERENCES companies(id),
		route_id       BIGINT NOT NULL REFERENCES routes(id),
		departure_date DATE NOT NULL,
		departure_time TEXT NOT NULL,
		arrival_time   TEXT NOT NULL,
		duration_min   BIGINT,
		bus_type       TEXT NOT NULL,
		is_ac          BOOLEAN,
		is_seater      BOOLEAN,
		is_sleeper     BOOLEAN,
		total_seats    BIGINT,
		UNIQUE (company_id, route_id, departure_date, departure_time, bus_type)
	)`,
	`CREATE TABLE IF NOT EXISTS trip_snapshots (
		id                   BIGSERIAL PRIMARY KEY,
		trip_id              BIGINT NOT NULL REFERENCES trips(id),
		snapshot_at          TIMESTAMPTZ NOT NULL,
		min_price            DOUBLE PRECISION NOT NULL,
		max_price            DOUBLE PRECISION NOT NULL,
		available_seats      BIGINT,
		has_offer            BOOLEAN NOT NULL DEFAULT false,
		offer_description    TEXT,
		original_min_price   DOUBLE PRECISION,
		discounted_min_price DOUBLE PRECISION,
		UNIQUE (trip_id, snapshot_at)
	)`,
	`CREATE TABLE IF NOT EXISTS stop_points (
		id         BIGSERIAL PRIMARY KEY,
		trip_id    BIGINT NOT NULL REFERENCES trips(id),
		name       TEXT NOT NULL,
		address    TEXT,
		stop_time  TIMESTAMP NOT NULL,
		kind       TEXT NOT NULL CHECK (kind IN ('boarding', 'dropoff')),
		UNIQUE (trip_id, name, stop_time, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS trip_amenities (
		trip_id    BIGINT NOT NULL REFERENCES trips(id),
		amenity_id BIGINT NOT NULL REFERENCES amenities(id),
		PRIMARY KEY (trip_id, amenity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS processing_errors (
		id         BIGSERIAL PRIMARY KEY,
		file_path  TEXT NOT NULL,
		item_index INTEGER,
		message    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS loaded_files (
		path      TEXT PRIMARY KEY,
		digest    TEXT NOT NULL DEFAULT '',
		items     INTEGER NOT NULL,
		loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// columns added after the first corpora were loaded
	`ALTER TABLE companies ADD COLUMN IF NOT EXISTS rating_count BIGINT`,
	`ALTER TABLE companies ADD COLUMN IF NOT EXISTS review_count BIGINT`,
	`ALTER TABLE companies ADD COLUMN IF NOT EXISTS score DOUBLE PRECISION`,
	`ALTER TABLE trip_snapshots ADD COLUMN IF NOT EXISTS source_url TEXT`,
	`ALTER TABLE loaded_files ADD COLUMN IF NOT EXISTS digest TEXT NOT NULL DEFAULT ''`,

	`CREATE INDEX IF NOT EXISTS trip_snapshots_trip_at ON trip_snapshots (trip_id, snapshot_at DESC)`,
	`CREATE INDEX IF NOT EXISTS trips_route ON trips (route_id, departure_date)`,
	`CREATE INDEX IF NOT EXISTS processing_errors_file ON processing_errors (file_path)`,
}

// EnsureSchema creates missing tables, columns and indexes. It never drops
// or rewrites existing objects.
func EnsureSchema(ctx context.Context, s *Store) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
