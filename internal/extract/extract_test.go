package extract

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"busfare-ingest/internal/fares"
)

var fixedNow = func() time.Time { return time.Date(2025, time.July, 1, 12, 0, 0, 500, time.UTC) }

func mustList(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := decode([]byte(s), &v); err != nil {
		t.Fatalf("decode %s: %v", s, err)
	}
	return v
}

func TestPriceRange(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		lo, hi float64
	}{
		{"mixed", `[120, "85.5", "abc"]`, 85.5, 120},
		{"empty", `[]`, 0, 0},
		{"null", `null`, 0, 0},
		{"all invalid", `["x", "-5", "1e3", true]`, 0, 0},
		{"single", `["40"]`, 40, 40},
		{"decimal string", `["5.", ".5", 7]`, 0.5, 7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			lo, hi := PriceRange(mustList(t, c.in))
			if lo != c.lo || hi != c.hi {
				t.Fatalf("PriceRange(%s) = (%v, %v), want (%v, %v)", c.in, lo, hi, c.lo, c.hi)
			}
		})
	}
}

func TestBusType(t *testing.T) {
	cases := []struct {
		service, busType any
		want             string
	}{
		{"Semi Cama", "Semi Cama", "Semi Cama"},
		{"VIP", "180", "VIP (180)"},
		{"", "", BusTypePlaceholder},
		{nil, nil, BusTypePlaceholder},
		{"Cama", "", "Cama"},
		{"", "Bus Cama 160", "Bus Cama 160"},
		{"vip", "VIP", "vip"},
		{" Suite ", json.Number("180"), "Suite (180)"},
	}
	for _, c := range cases {
		if got := BusType(c.service, c.busType); got != c.want {
			t.Errorf("BusType(%v, %v) = %q, want %q", c.service, c.busType, got, c.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	if ts, ok := ParseTimestamp("2025-07-03 21:30:00"); !ok || ts.Format("15:04:05") != "21:30:00" {
		t.Fatalf("seconds layout: %v %v", ts, ok)
	}
	if ts, ok := ParseTimestamp("2025-07-03 21:30"); !ok || ts.Minute() != 30 {
		t.Fatalf("minutes layout: %v %v", ts, ok)
	}
	for _, bad := range []any{"", "03/07/2025 21:30", nil, json.Number("1")} {
		if _, ok := ParseTimestamp(bad); ok {
			t.Errorf("ParseTimestamp(%v) should fail", bad)
		}
	}
}

func TestAmenityCodes(t *testing.T) {
	got := AmenityCodes(mustList(t, `[1, "41", "wifi", 4.5, -2, "007", null]`))
	want := []int{1, 41, 7}
	if len(got) != len(want) {
		t.Fatalf("AmenityCodes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AmenityCodes = %v, want %v", got, want)
		}
	}
	if AmenityCodes("1,2") != nil {
		t.Fatalf("non-list should yield nil")
	}
}

func TestAmenityDescription(t *testing.T) {
	if AmenityDescription(41) != "WiFi" {
		t.Fatalf("41 = %q", AmenityDescription(41))
	}
	if AmenityDescription(999) != "Unknown amenity 999" {
		t.Fatalf("999 = %q", AmenityDescription(999))
	}
}

func TestStopPoints(t *testing.T) {
	list := mustList(t, `[
		{"Name": "Terminal Plaza Norte", "Address": "Av. Tomas Valle", "BpFullTime": "2025-07-03 21:00"},
		{"Name": "", "BpFullTime": "2025-07-03 21:10:00"},
		{"Name": "Javier Prado", "BpFullTime": "soon"},
		"not an object"
	]`)
	got := StopPoints(list, fares.Boarding)
	if len(got) != 1 {
		t.Fatalf("StopPoints = %+v", got)
	}
	if got[0].Name != "Terminal Plaza Norte" || got[0].Address == nil || got[0].Kind != fares.Boarding {
		t.Fatalf("unexpected stop %+v", got[0])
	}
}

const samplePayload = `{
  "parentSrcCityName": "Lima",
  "parentDstCityName": "Arequipa",
  "metaData": {"busLogoBaseUrl": "https://cdn.example.invalid/logos/"},
  "inventories": [
    {
      "travelsName": "Cruz del Sur",
      "operatorId": 15926,
      "totalRatings": 4.4,
      "numberOfReviews": "1200",
      "busScore": "8.7",
      "operatorLogoPath": "/cds.png",
      "departureTime": "2025-07-03 21:30:00",
      "arrivalTime": "2025-07-04 07:45",
      "journeyDurationMin": 615,
      "serviceName": "VIP",
      "busType": "180",
      "isAc": true,
      "isSeater": 1,
      "isSleeper": false,
      "totalSeats": 40,
      "availableSeats": "12",
      "fareList": [120, "85.5", "abc"],
      "operatorOfferCampaign": {"CmpgList": [{"CampaignDesc": "10% off", "OriginalPrices": [130, 95], "DiscountedPrices": ["117", 85.5]}]},
      "bpData": [{"Name": "Plaza Norte", "Address": "Av. Tomas Valle", "BpFullTime": "2025-07-03 21:00:00"}],
      "dpData": [{"Name": "Terrapuerto", "BpFullTime": "2025-07-04 07:45"}],
      "amenities": [41, "29", "x"]
    },
    {"travelsName": "", "departureTime": "2025-07-03 10:00"},
    {"travelsName": "Oltursa", "departureTime": "tomorrow", "arrivalTime": "2025-07-04 07:45"},
    {"travelsName": "Civa", "departureTime": "2025-07-03 10:00", "arrivalTime": [1]},
    42
  ]
}`

func TestParsePayload(t *testing.T) {
	p, err := Parse(`data\raw\x.json`, []byte(samplePayload), fixedNow)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Origin != "Lima" || p.Destination != "Arequipa" {
		t.Fatalf("route = %s -> %s", p.Origin, p.Destination)
	}
	if len(p.Items) != 1 {
		t.Fatalf("items = %d, errors = %v", len(p.Items), p.Errors)
	}
	if p.Skipped != 1 {
		t.Fatalf("skipped = %d", p.Skipped)
	}
	if len(p.Errors) != 3 {
		t.Fatalf("errors = %v", p.Errors)
	}
	for i, want := range []int{2, 3, 4} {
		if p.Errors[i].Index != want {
			t.Errorf("error[%d].Index = %d, want %d", i, p.Errors[i].Index, want)
		}
	}

	it := p.Items[0]
	if it.Company.Name != "Cruz del Sur" || it.Company.OperatorID == nil || *it.Company.OperatorID != 15926 {
		t.Fatalf("company = %+v", it.Company)
	}
	if it.Company.LogoURL == nil || *it.Company.LogoURL != "https://cdn.example.invalid/logos/cds.png" {
		t.Fatalf("logo = %v", it.Company.LogoURL)
	}
	if it.Company.RatingCount == nil || *it.Company.RatingCount != 4 || *it.Company.ReviewCount != 1200 {
		t.Fatalf("counts = %v %v", it.Company.RatingCount, it.Company.ReviewCount)
	}
	if it.Trip.DepartureDate.Format("2006-01-02") != "2025-07-03" || it.Trip.DepartureTime != "21:30:00" || it.Trip.ArrivalTime != "07:45:00" {
		t.Fatalf("trip times = %+v", it.Trip)
	}
	if it.Trip.BusType != "VIP (180)" || *it.Trip.IsAC != true || *it.Trip.IsSeater != true || *it.Trip.IsSleeper != false {
		t.Fatalf("trip = %+v", it.Trip)
	}
	s := it.Snapshot
	if s.MinPrice != 85.5 || s.MaxPrice != 120 || *s.AvailableSeats != 12 {
		t.Fatalf("snapshot prices = %+v", s)
	}
	if !s.HasOffer || *s.OfferDescription != "10% off" || *s.OriginalMinPrice != 95 || *s.DiscountedMinPrice != 85.5 {
		t.Fatalf("offer = %+v", s)
	}
	if !s.TakenAt.Equal(time.Date(2025, time.July, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("taken at = %v", s.TakenAt)
	}
	if s.SourceURL != `data\raw\x.json` && s.SourceURL != "data/raw/x.json" {
		t.Fatalf("source = %q", s.SourceURL)
	}
	if len(it.Stops) != 2 || it.Stops[0].Kind != fares.Boarding || it.Stops[1].Kind != fares.Dropoff {
		t.Fatalf("stops = %+v", it.Stops)
	}
	if len(it.Amenities) != 2 || it.Amenities[0] != 41 || it.Amenities[1] != 29 {
		t.Fatalf("amenities = %v", it.Amenities)
	}
}

func TestParseMalformedOfferKeepsItem(t *testing.T) {
	cases := []struct{ name, offer string }{
		{"empty string", `""`},
		{"false", `false`},
		{"null", `null`},
		{"empty array", `[]`},
		{"list is an object", `{"CmpgList": {}}`},
		{"empty list", `{"CmpgList": []}`},
		{"entry not an object", `{"CmpgList": ["10% off"]}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := `{"inventories": [{"travelsName": "Civa", "departureTime": "2025-07-03 10:00",
				"arrivalTime": "2025-07-03 20:00", "fareList": [70], "operatorOfferCampaign": ` + c.offer + `}]}`
			p, err := Parse("f.json", []byte(raw), fixedNow)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(p.Items) != 1 || len(p.Errors) != 0 {
				t.Fatalf("items = %d, errors = %v", len(p.Items), p.Errors)
			}
			s := p.Items[0].Snapshot
			if s.HasOffer || s.OfferDescription != nil || s.OriginalMinPrice != nil || s.DiscountedMinPrice != nil {
				t.Fatalf("offer fields set: %+v", s)
			}
			if s.MinPrice != 70 {
				t.Fatalf("min price = %v", s.MinPrice)
			}
		})
	}
}

func TestParseFileErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `{"inventories": [`, ErrInvalidJSON},
		{"missing inventories", `{"metaData": {}}`, ErrNoInventories},
		{"inventories object", `{"inventories": {}}`, ErrNoInventories},
		{"null inventories", `{"inventories": null}`, ErrNoInventories},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse("f.json", []byte(c.in), fixedNow)
			if !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestParseEmptyInventories(t *testing.T) {
	p, err := Parse("f.json", []byte(`{"inventories": []}`), fixedNow)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Items) != 0 || p.Origin != "Unknown" || p.Destination != "Unknown" {
		t.Fatalf("payload = %+v", p)
	}
}
