// Package extract turns a raw search response into normalized fare records.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"busfare-ingest/internal/fares"
)

const unknownCity = "Unknown"

var (
	ErrInvalidJSON   = errors.New("invalid JSON payload")
	ErrNoInventories = errors.New("payload has no inventories array")
)

// Payload is the normalized content of one raw response file.
type Payload struct {
	Origin      string
	Destination string
	LogoBaseURL string
	Items       []fares.Item
	Skipped     int // items without any company identity
	Errors      []ItemError
}

// ItemError describes one inventory entry that could not be extracted.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string { return fmt.Sprintf("inventory item %d: %v", e.Index, e.Err) }

type rawResponse struct {
	SrcCity     any `json:"parentSrcCityName"`
	DstCity     any `json:"parentDstCityName"`
	MetaData    json.RawMessage `json:"metaData"`
	Inventories json.RawMessage `json:"inventories"`
}

type rawMeta struct {
	BusLogoBaseURL string `json:"busLogoBaseUrl"`
}

type rawInventory struct {
	TravelsName        any `json:"travelsName"`
	OperatorID         any `json:"operatorId"`
	TotalRatings       any `json:"totalRatings"`
	NumberOfReviews    any `json:"numberOfReviews"`
	BusScore           any `json:"busScore"`
	OperatorLogoPath   any `json:"operatorLogoPath"`
	DepartureTime      any `json:"departureTime"`
	ArrivalTime        any `json:"arrivalTime"`
	JourneyDurationMin any `json:"journeyDurationMin"`
	ServiceName        any `json:"serviceName"`
	BusType            any `json:"busType"`
	IsAC               any `json:"isAc"`
	IsSeater           any `json:"isSeater"`
	IsSleeper          any `json:"isSleeper"`
	TotalSeats         any `json:"totalSeats"`
	AvailableSeats     any `json:"availableSeats"`
	FareList           any `json:"fareList"`
	OfferCampaign      any `json:"operatorOfferCampaign"`
	BoardingPoints     any `json:"bpData"`
	DroppingPoints     any `json:"dpData"`
	Amenities          any `json:"amenities"`
}

// Parse extracts every inventory item of a raw response. A file-level error
// is returned only when the payload is not JSON or lacks an inventories
// array; item-level problems are collected in Payload.Errors. now stamps each
// item's snapshot.
func Parse(path string, raw []byte, now func() time.Time) (*Payload, error) {
	var resp rawResponse
	if err := decode(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	invRaw := bytes.TrimSpace(resp.Inventories)
	if len(invRaw) == 0 || invRaw[0] != '[' {
		return nil, ErrNoInventories
	}
	var inventories []json.RawMessage
	if err := json.Unmarshal(invRaw, &inventories); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInventories, err)
	}

	p := &Payload{
		Origin:      cityOrUnknown(resp.SrcCity),
		Destination: cityOrUnknown(resp.DstCity),
	}
	if len(resp.MetaData) > 0 {
		var meta rawMeta
		if err := json.Unmarshal(resp.MetaData, &meta); err == nil {
			p.LogoBaseURL = meta.BusLogoBaseURL
		}
	}

	source := filepath.ToSlash(path)
	for i, inv := range inventories {
		item, ok, err := p.item(inv, source, now)
		if err != nil {
			p.Errors = append(p.Errors, ItemError{Index: i, Err: err})
			continue
		}
		if !ok {
			p.Skipped++
			continue
		}
		p.Items = append(p.Items, item)
	}
	return p, nil
}

func (p *Payload) item(raw json.RawMessage, source string, now func() time.Time) (fares.Item, bool, error) {
	var inv rawInventory
	if err := decode(raw, &inv); err != nil {
		return fares.Item{}, false, fmt.Errorf("decode: %w", err)
	}

	company := fares.Company{
		Name:        strings.TrimSpace(asString(inv.TravelsName)),
		OperatorID:  optInt(inv.OperatorID),
		Rating:      optFloat(inv.TotalRatings),
		LogoURL:     LogoURL(p.LogoBaseURL, inv.OperatorLogoPath),
		RatingCount: optInt(inv.TotalRatings),
		ReviewCount: optInt(inv.NumberOfReviews),
		Score:       optFloat(inv.BusScore),
	}
	if company.Name == "" && company.OperatorID == nil {
		return fares.Item{}, false, nil
	}

	dep, ok := ParseTimestamp(inv.DepartureTime)
	if !ok {
		return fares.Item{}, false, fmt.Errorf("unparseable departureTime %v", inv.DepartureTime)
	}
	arr, ok := ParseTimestamp(inv.ArrivalTime)
	if !ok {
		return fares.Item{}, false, fmt.Errorf("unparseable arrivalTime %v", inv.ArrivalTime)
	}

	trip := fares.Trip{
		DepartureDate: time.Date(dep.Year(), dep.Month(), dep.Day(), 0, 0, 0, 0, time.UTC),
		DepartureTime: dep.Format("15:04:05"),
		ArrivalTime:   arr.Format("15:04:05"),
		DurationMin:   optInt(inv.JourneyDurationMin),
		BusType:       BusType(inv.ServiceName, inv.BusType),
		IsAC:          optBool(inv.IsAC),
		IsSeater:      optBool(inv.IsSeater),
		IsSleeper:     optBool(inv.IsSleeper),
		TotalSeats:    optInt(inv.TotalSeats),
	}

	lo, hi := PriceRange(inv.FareList)
	snap := fares.Snapshot{
		TakenAt:        now().UTC().Truncate(time.Second),
		MinPrice:       lo,
		MaxPrice:       hi,
		AvailableSeats: optInt(inv.AvailableSeats),
		SourceURL:      source,
	}
	if offer, ok := firstOffer(inv.OfferCampaign); ok {
		snap.HasOffer = true
		snap.OfferDescription = optString(offer["CampaignDesc"])
		snap.OriginalMinPrice = minPrice(offer["OriginalPrices"])
		snap.DiscountedMinPrice = minPrice(offer["DiscountedPrices"])
	}

	stops := append(StopPoints(inv.BoardingPoints, fares.Boarding), StopPoints(inv.DroppingPoints, fares.Dropoff)...)

	return fares.Item{
		Company:   company,
		Trip:      trip,
		Snapshot:  snap,
		Stops:     stops,
		Amenities: AmenityCodes(inv.Amenities),
	}, true, nil
}

// StopPoints keeps the entries of a bpData/dpData list that carry both a
// name and a parseable BpFullTime.
func StopPoints(v any, kind fares.StopKind) []fares.StopPoint {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []fares.StopPoint
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name := strings.TrimSpace(asString(m["Name"]))
		at, ok := ParseTimestamp(m["BpFullTime"])
		if name == "" || !ok {
			continue
		}
		out = append(out, fares.StopPoint{
			Name:    name,
			Address: optString(m["Address"]),
			At:      at,
			Kind:    kind,
		})
	}
	return out
}

// firstOffer returns the first CmpgList entry of an operatorOfferCampaign
// value. Any other shape means no offer.
func firstOffer(v any) (map[string]any, bool) {
	campaign, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	list, ok := campaign["CmpgList"].([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	offer, ok := list[0].(map[string]any)
	if !ok || len(offer) == 0 {
		return nil, false
	}
	return offer, true
}

func cityOrUnknown(v any) string {
	if s := strings.TrimSpace(asString(v)); s != "" {
		return s
	}
	return unknownCity
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
