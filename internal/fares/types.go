package fares

import (
	"strconv"
	"time"
)

// DOJLayout is the travel-date format the search endpoint expects (e.g. 15-Jul-2025).
const DOJLayout = "02-Jan-2006"

// Task is one (origin, destination, date) search to fetch.
type Task struct {
	OriginID      int64
	DestinationID int64
	Origin        string // city label as listed in the city table
	Destination   string
	Date          time.Time
	OutputPath    string // raw store file the response is written to
}

func (t Task) DOJ() string { return t.Date.Format(DOJLayout) }

func (t Task) String() string {
	return t.Origin + " -> " + t.Destination + " @ " + t.Date.Format("2006-01-02")
}

type Company struct {
	Name        string
	OperatorID  *int64
	Rating      *float64
	LogoURL     *string
	RatingCount *int64
	ReviewCount *int64
	Score       *float64
}

// CompanyKey is the natural identity of a company.
type CompanyKey struct {
	Name       string
	OperatorID int64
	HasID      bool
}

func (c Company) Key() CompanyKey {
	k := CompanyKey{Name: c.Name}
	if c.OperatorID != nil {
		k.OperatorID = *c.OperatorID
		k.HasID = true
	}
	return k
}

func (k CompanyKey) String() string {
	if !k.HasID {
		return k.Name
	}
	return k.Name + "#" + strconv.FormatInt(k.OperatorID, 10)
}

// Trip is the static part of a scheduled service. Together with company and
// route, (DepartureDate, DepartureTime, BusType) is its natural identity.
type Trip struct {
	DepartureDate time.Time // midnight, UTC
	DepartureTime string    // 15:04:05
	ArrivalTime   string    // 15:04:05
	DurationMin   *int64
	BusType       string
	IsAC          *bool
	IsSeater      *bool
	IsSleeper     *bool
	TotalSeats    *int64
}

// Snapshot is one point-in-time observation of a trip's price and availability.
type Snapshot struct {
	TakenAt            time.Time
	MinPrice           float64
	MaxPrice           float64
	AvailableSeats     *int64
	HasOffer           bool
	OfferDescription   *string
	OriginalMinPrice   *float64
	DiscountedMinPrice *float64
	SourceURL          string
}

type StopKind string

const (
	Boarding StopKind = "boarding"
	Dropoff  StopKind = "dropoff"
)

type StopPoint struct {
	Name    string
	Address *string
	At      time.Time
	Kind    StopKind
}

// Item is everything extracted from one inventory entry of a raw response.
type Item struct {
	Company   Company
	Trip      Trip
	Snapshot  Snapshot
	Stops     []StopPoint
	Amenities []int
}

// FareRow is one row of the latest-fares view: a trip's catalog attributes
// joined with its most recent snapshot and its route's average min price.
type FareRow struct {
	TripID             int64     `json:"tripId" gorm:"column:trip_id"`
	Company            string    `json:"company" gorm:"column:company"`
	Rating             *float64  `json:"rating,omitempty" gorm:"column:rating"`
	Origin             string    `json:"origin" gorm:"column:origin"`
	Destination        string    `json:"destination" gorm:"column:destination"`
	DepartureDate      time.Time `json:"departureDate" gorm:"column:departure_date"`
	DepartureTime      string    `json:"departureTime" gorm:"column:departure_time"`
	ArrivalTime        string    `json:"arrivalTime" gorm:"column:arrival_time"`
	DurationMin        *int64    `json:"durationMin,omitempty" gorm:"column:duration_min"`
	BusType            string    `json:"busType" gorm:"column:bus_type"`
	IsAC               *bool     `json:"isAc,omitempty" gorm:"column:is_ac"`
	IsSeater           *bool     `json:"isSeater,omitempty" gorm:"column:is_seater"`
	IsSleeper          *bool     `json:"isSleeper,omitempty" gorm:"column:is_sleeper"`
	TotalSeats         *int64    `json:"totalSeats,omitempty" gorm:"column:total_seats"`
	SnapshotAt         time.Time `json:"snapshotAt" gorm:"column:snapshot_at"`
	MinPrice           float64   `json:"minPrice" gorm:"column:min_price"`
	MaxPrice           float64   `json:"maxPrice" gorm:"column:max_price"`
	AvailableSeats     *int64    `json:"availableSeats,omitempty" gorm:"column:available_seats"`
	HasOffer           bool      `json:"hasOffer" gorm:"column:has_offer"`
	OfferDescription   *string   `json:"offerDescription,omitempty" gorm:"column:offer_description"`
	OriginalMinPrice   *float64  `json:"originalMinPrice,omitempty" gorm:"column:original_min_price"`
	DiscountedMinPrice *float64  `json:"discountedMinPrice,omitempty" gorm:"column:discounted_min_price"`
	RouteAvgMinPrice   *float64  `json:"routeAvgMinPrice,omitempty" gorm:"column:route_avg_min_price"`
}
