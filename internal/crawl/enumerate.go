// Package crawl fetches one raw search response per (origin, destination,
// date) task and stores it in the raw store.
package crawl

import (
	"errors"
	"fmt"
	"time"

	"busfare-ingest/internal/cities"
	"busfare-ingest/internal/fares"
	"busfare-ingest/internal/rawstore"
)

var ErrInvalidRange = errors.New("invalid date range")

// DateRange is an inclusive range of travel dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// MonthRange covers every day of the given month.
func MonthRange(year int, month time.Month) DateRange {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{From: from, To: from.AddDate(0, 1, -1)}
}

func (r DateRange) Days() []time.Time {
	var out []time.Time
	for d := day(r.From); !d.After(day(r.To)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// Validate rejects inverted ranges and ranges longer than maxDays
// (maxDays <= 0 disables the length check).
func (r DateRange) Validate(maxDays int) error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidRange)
	}
	if day(r.From).After(day(r.To)) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidRange,
			r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
	}
	if n := len(r.Days()); maxDays > 0 && n > maxDays {
		return fmt.Errorf("%w: %d days exceeds the limit of %d", ErrInvalidRange, n, maxDays)
	}
	return nil
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DoneFunc reports whether the raw response for a path already exists.
type DoneFunc func(path string) bool

// Filter restricts enumeration to one origin and/or destination.
type Filter struct {
	Origin      string
	Destination string
}

// Enumerate lists the tasks still to fetch, ordered by origin, destination
// and date as they appear in the city table.
func Enumerate(table *cities.Table, r DateRange, root string, done DoneFunc, f Filter) ([]fares.Task, error) {
	if f.Origin != "" {
		if _, ok := table.Lookup(f.Origin); !ok {
			return nil, fmt.Errorf("unknown origin %q", f.Origin)
		}
	}
	if f.Destination != "" {
		if _, ok := table.Lookup(f.Destination); !ok {
			return nil, fmt.Errorf("unknown destination %q", f.Destination)
		}
	}
	if done == nil {
		done = rawstore.Exists
	}

	days := r.Days()
	var tasks []fares.Task
	for _, o := range table.Cities() {
		if f.Origin != "" && o.Name != f.Origin {
			continue
		}
		for _, d := range table.Cities() {
			if o.Name == d.Name || (f.Destination != "" && d.Name != f.Destination) {
				continue
			}
			for _, day := range days {
				p := rawstore.Path(root, o.Name, d.Name, day)
				if done(p) {
					continue
				}
				tasks = append(tasks, fares.Task{
					OriginID:      o.ID,
					DestinationID: d.ID,
					Origin:        o.Name,
					Destination:   d.Name,
					Date:          day,
					OutputPath:    p,
				})
			}
		}
	}
	return tasks, nil
}
