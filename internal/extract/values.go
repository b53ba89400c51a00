package extract

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// BusTypePlaceholder labels a trip whose service name and bus type are both missing.
const BusTypePlaceholder = "Not specified"

var timestampLayouts = []string{"2006-01-02 15:04:05", "2006-01-02 15:04"}

// ParseTimestamp accepts "YYYY-MM-DD HH:MM:SS" and "YYYY-MM-DD HH:MM".
func ParseTimestamp(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// BusType combines the service name and bus type into one label:
// "VIP" + "180" -> "VIP (180)"; equal values (case-insensitive) collapse.
func BusType(service, busType any) string {
	s := strings.TrimSpace(asString(service))
	b := strings.TrimSpace(asString(busType))
	if s != "" && b != "" && !strings.EqualFold(s, b) {
		return s + " (" + b + ")"
	}
	if s != "" {
		return s
	}
	if b != "" {
		return b
	}
	return BusTypePlaceholder
}

// PriceRange returns the min and max of the numeric entries of a fare list.
// Numbers and numeric-looking strings count; anything else is ignored. A
// missing, empty or fully invalid list yields (0, 0).
func PriceRange(fareList any) (float64, float64) {
	prices := numericPrices(fareList)
	if len(prices) == 0 {
		return 0, 0
	}
	lo, hi := prices[0], prices[0]
	for _, p := range prices[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return lo, hi
}

func minPrice(list any) *float64 {
	prices := numericPrices(list)
	if len(prices) == 0 {
		return nil
	}
	lo := prices[0]
	for _, p := range prices[1:] {
		lo = math.Min(lo, p)
	}
	return &lo
}

func numericPrices(list any) []float64 {
	items, ok := list.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				out = append(out, f)
			}
		case float64:
			out = append(out, v)
		case string:
			// digits with at most one decimal point; no sign, no exponent
			if isDigits(strings.Replace(v, ".", "", 1)) {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					out = append(out, f)
				}
			}
		}
	}
	return out
}

// AmenityCodes keeps entries that are non-negative integers or digit-only strings.
func AmenityCodes(v any) []int {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []int
	for _, it := range items {
		var s string
		switch c := it.(type) {
		case json.Number:
			s = c.String()
		case string:
			s = c
		case float64:
			if c != math.Trunc(c) || c < 0 {
				continue
			}
			s = strconv.FormatFloat(c, 'f', 0, 64)
		default:
			continue
		}
		if !isDigits(s) {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func optString(v any) *string {
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return nil
	}
	return &s
}

// optInt truncates numbers toward zero and parses integer strings.
func optInt(v any) *int64 {
	var n int64
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			n = i
		} else if f, err := x.Float64(); err == nil && !math.IsInf(f, 0) {
			n = int64(f)
		} else {
			return nil
		}
	case float64:
		n = int64(x)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil
		}
		n = i
	case bool:
		if x {
			n = 1
		}
	default:
		return nil
	}
	return &n
}

func optFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return nil
		}
		f = p
	case float64:
		f = x
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func optBool(v any) *bool {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		b = f != 0
	case float64:
		b = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "t", "yes", "y":
			b = true
		case "0", "false", "f", "no", "n":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

// LogoURL joins the response's logo base URL and an operator logo path.
func LogoURL(base string, path any) *string {
	p := asString(path)
	if base == "" || p == "" {
		return nil
	}
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
	return &u
}
