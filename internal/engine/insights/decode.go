package insights

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// safeGet navigates nested map[string]any structures by key path.
// Returns nil if any step fails.
func safeGet(data any, path ...string) any {
	current := data
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// safeSlice returns data as a []any, or nil.
func safeSlice(data any) []any {
	s, ok := data.([]any)
	if !ok {
		return nil
	}
	return s
}

// safeString extracts a string from various types.
func safeString(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// safeFloat extracts a float64 from various types.
func safeFloat(data any) float64 {
	switch v := data.(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// parseCount parses the count field of a computeInsights response, which
// arrives as a decimal string. Absent or malformed values parse to zero so
// a probe can never crash a scan over a formatting quirk.
func parseCount(v any) int {
	s := strings.TrimSpace(safeString(v))
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// decodePlaceDetail maps a place-details response body onto a PlaceDetail.
// The decode is tolerant: displayName may be an object with a text field
// or a bare string, and any missing field just stays zero. Only an
// undecodable body reports false.
func decodePlaceDetail(body []byte) (model.PlaceDetail, bool) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.PlaceDetail{}, false
	}

	d := model.PlaceDetail{
		ID:               safeString(raw["id"]),
		Name:             safeString(raw["name"]),
		FormattedAddress: safeString(raw["formattedAddress"]),
		Rating:           safeFloat(raw["rating"]),
		UserRatingCount:  int(safeFloat(raw["userRatingCount"])),
		BusinessStatus:   safeString(raw["businessStatus"]),
	}

	if text := safeGet(raw, "displayName", "text"); text != nil {
		d.DisplayName = safeString(text)
	} else {
		d.DisplayName = safeString(raw["displayName"])
	}

	d.Lat = safeFloat(safeGet(raw, "location", "latitude"))
	d.Lng = safeFloat(safeGet(raw, "location", "longitude"))

	for _, t := range safeSlice(raw["types"]) {
		if s := safeString(t); s != "" {
			d.Types = append(d.Types, s)
		}
	}

	return d, true
}
