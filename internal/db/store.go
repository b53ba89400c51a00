package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"busfare-ingest/internal/fares"
)

// Tx is one loader batch. Every write is insert-or-ignore against a unique
// key, so re-loading the same file never duplicates rows.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback is safe to call after Commit.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// getOrCreate runs insert (which must end in ON CONFLICT DO NOTHING
// RETURNING id) and falls back to lookup when the row already existed.
func (t *Tx) getOrCreate(ctx context.Context, insert string, insertArgs []any, lookup string, lookupArgs ...any) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, insert, insertArgs...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("insert: %w", err)
	}
	if err := t.tx.QueryRowContext(ctx, lookup, lookupArgs...).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("lookup: %w", err)
	}
	return id, false, nil
}

func (t *Tx) GetOrCreateRoute(ctx context.Context, origin, destination string) (int64, error) {
	id, _, err := t.getOrCreate(ctx,
		`INSERT INTO routes (origin, destination) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING RETURNING id`,
		[]any{origin, destination},
		`SELECT id FROM routes WHERE origin = $1 AND destination = $2`, origin, destination)
	if err != nil {
		return 0, fmt.Errorf("route %s -> %s: %w", origin, destination, err)
	}
	return id, nil
}

// GetOrCreateCompany keeps the attributes seen first; later sightings of the
// same company do not update it.
func (t *Tx) GetOrCreateCompany(ctx context.Context, c fares.Company) (int64, error) {
	insert := `INSERT INTO companies (name, operator_id, rating, logo_url, rating_count, review_count, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING RETURNING id`
	args := []any{c.Name, c.OperatorID, c.Rating, c.LogoURL, c.RatingCount, c.ReviewCount, c.Score}

	var (
		id  int64
		err error
	)
	if c.OperatorID != nil {
		id, _, err = t.getOrCreate(ctx, insert, args,
			`SELECT id FROM companies WHERE operator_id = $1`, *c.OperatorID)
	} else {
		id, _, err = t.getOrCreate(ctx, insert, args,
			`SELECT id FROM companies WHERE name = $1 AND operator_id IS NULL`, c.Name)
	}
	if err != nil {
		return 0, fmt.Errorf("company %s: %w", c.Key(), err)
	}
	return id, nil
}

func (t *Tx) GetOrCreateAmenity(ctx context.Context, code int, description string) (int64, error) {
	id, _, err := t.getOrCreate(ctx,
		`INSERT INTO amenities (code, description) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING RETURNING id`,
		[]any{code, description},
		`SELECT id FROM amenities WHERE code = $1`, code)
	if err != nil {
		return 0, fmt.Errorf("amenity %d: %w", code, err)
	}
	return id, nil
}

// CreateTrip reports created=true only when this call inserted the row.
func (t *Tx) CreateTrip(ctx context.Context, companyID, routeID int64, tr fares.Trip) (int64, bool, error) {
	id, created, err := t.getOrCreate(ctx,
		`INSERT INTO trips (company_id, route_id, departure_date, departure_time, arrival_time,
			duration_min, bus_type, is_ac, is_seater, is_sleeper, total_seats)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT DO NOTHING RETURNING id`,
		[]any{companyID, routeID, tr.DepartureDate, tr.DepartureTime, tr.ArrivalTime,
			tr.DurationMin, tr.BusType, tr.IsAC, tr.IsSeater, tr.IsSleeper, tr.TotalSeats},
		`SELECT id FROM trips
		 WHERE company_id = $1 AND route_id = $2 AND departure_date = $3
		   AND departure_time = $4 AND bus_type = $5`,
		companyID, routeID, tr.DepartureDate, tr.DepartureTime, tr.BusType)
	if err != nil {
		return 0, false, fmt.Errorf("trip %s %s %s: %w",
			tr.DepartureDate.Format("2006-01-02"), tr.DepartureTime, tr.BusType, err)
	}
	return id, created, nil
}

// InsertSnapshot appends one observation; an existing (trip, snapshot_at)
// row is left untouched and reported as inserted=false.
func (t *Tx) InsertSnapshot(ctx context.Context, tripID int64, s fares.Snapshot) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO trip_snapshots (trip_id, snapshot_at, min_price, max_price, available_seats,
			has_offer, offer_description, original_min_price, discounted_min_price, source_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (trip_id, snapshot_at) DO NOTHING`,
		tripID, s.TakenAt, s.MinPrice, s.MaxPrice, s.AvailableSeats,
		s.HasOffer, s.OfferDescription, s.OriginalMinPrice, s.DiscountedMinPrice, s.SourceURL)
	if err != nil {
		return false, fmt.Errorf("insert snapshot trip=%d: %w", tripID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *Tx) InsertStopPoints(ctx context.Context, tripID int64, stops []fares.StopPoint) error {
	for _, sp := range stops {
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO stop_points (trip_id, name, address, stop_time, kind)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT DO NOTHING`,
			tripID, sp.Name, sp.Address, sp.At, string(sp.Kind))
		if err != nil {
			return fmt.Errorf("insert stop point trip=%d %s: %w", tripID, sp.Name, err)
		}
	}
	return nil
}

func (t *Tx) LinkAmenity(ctx context.Context, tripID, amenityID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO trip_amenities (trip_id, amenity_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`, tripID, amenityID)
	if err != nil {
		return fmt.Errorf("link amenity trip=%d amenity=%d: %w", tripID, amenityID, err)
	}
	return nil
}

// RecordError appends to the processing error ledger. A negative item marks
// a file-level error.
func (t *Tx) RecordError(ctx context.Context, file string, item int, message string) error {
	var idx *int
	if item >= 0 {
		idx = &item
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO processing_errors (file_path, item_index, message) VALUES ($1, $2, $3)`,
		file, idx, message)
	if err != nil {
		return fmt.Errorf("record error %s: %w", file, err)
	}
	return nil
}

// MarkLoaded records the content digest a file was loaded with. Loading a
// re-crawled file replaces the earlier entry.
func (t *Tx) MarkLoaded(ctx context.Context, file, digest string, items int) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO loaded_files (path, digest, items) VALUES ($1, $2, $3)
		 ON CONFLICT (path) DO UPDATE
		 SET digest = EXCLUDED.digest, items = EXCLUDED.items, loaded_at = now()`, file, digest, items)
	if err != nil {
		return fmt.Errorf("mark loaded %s: %w", file, err)
	}
	return nil
}
