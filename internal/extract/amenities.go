package extract

import "strconv"

var amenityDescriptions = map[int]string{
	1:  "Snacks",
	3:  "Blanket",
	4:  "Pillow",
	5:  "Bottled water",
	6:  "Headphones",
	7:  "Central TV",
	8:  "Music",
	9:  "Movies",
	12: "Toilet",
	13: "Fire extinguisher",
	21: "Reading light",
	24: "Charger",
	25: "Leg rest",
	26: "GPS",
	27: "Seat belt",
	29: "Air conditioning",
	30: "Heating",
	31: "Reclining seat",
	33: "Personal screen",
	34: "Power outlet",
	41: "WiFi",
	51: "USB port",
	52: "Live tracking",
	71: "CCTV",
	88: "First aid",
}

// AmenityDescription maps an amenity code to its label; unknown codes get a placeholder.
func AmenityDescription(code int) string {
	if d, ok := amenityDescriptions[code]; ok {
		return d
	}
	return "Unknown amenity " + strconv.Itoa(code)
}
