package db

import (
	"context"
	"database/sql"
	"fmt"

	"busfare-ingest/internal/fares"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenGorm wraps an existing pool for the read side.
func OpenGorm(sqlDB *sql.DB) (*gorm.DB, error) {
	g, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return g, nil
}

const latestFaresSQL = `
WITH latest AS (
	SELECT s.*, ROW_NUMBER() OVER (PARTITION BY s.trip_id ORDER BY s.snapshot_at DESC) AS rn
	FROM trip_snapshots s
),
route_avg AS (
	SELECT t.route_id, AVG(s.min_price) AS avg_min_price
	FROM trip_snapshots s
	JOIN trips t ON t.id = s.trip_id
	GROUP BY t.route_id
)
SELECT
	t.id              AS trip_id,
	c.name            AS company,
	c.rating          AS rating,
	r.origin          AS origin,
	r.destination     AS destination,
	t.departure_date  AS departure_date,
	t.departure_time  AS departure_time,
	t.arrival_time    AS arrival_time,
	t.duration_min    AS duration_min,
	t.bus_type        AS bus_type,
	t.is_ac           AS is_ac,
	t.is_seater       AS is_seater,
	t.is_sleeper      AS is_sleeper,
	t.total_seats     AS total_seats,
	l.snapshot_at     AS snapshot_at,
	l.min_price       AS min_price,
	l.max_price       AS max_price,
	l.available_seats AS available_seats,
	l.has_offer       AS has_offer,
	l.offer_description    AS offer_description,
	l.original_min_price   AS original_min_price,
	l.discounted_min_price AS discounted_min_price,
	ra.avg_min_price  AS route_avg_min_price
FROM latest l
JOIN trips t ON t.id = l.trip_id
JOIN companies c ON c.id = t.company_id
JOIN routes r ON r.id = t.route_id
LEFT JOIN route_avg ra ON ra.route_id = t.route_id
WHERE l.rn = 1
  AND (@origin = '' OR r.origin = @origin)
  AND (@destination = '' OR r.destination = @destination)
ORDER BY t.departure_date, t.departure_time, c.name`

// FaresFilter narrows LatestFares to one route; empty fields match all.
type FaresFilter struct {
	Origin      string
	Destination string
}

// LatestFares returns every trip with its most recent snapshot and the
// average historical min price of its route.
func LatestFares(ctx context.Context, g *gorm.DB, f FaresFilter) ([]fares.FareRow, error) {
	var rows []fares.FareRow
	err := g.WithContext(ctx).Raw(latestFaresSQL, map[string]any{
		"origin":      f.Origin,
		"destination": f.Destination,
	}).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query latest fares: %w", err)
	}
	return rows, nil
}
