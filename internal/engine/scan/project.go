package scan

import (
	"strings"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// ProjectRow maps a resolved place detail onto the ledger row shape. The
// row identity prefers the place id and falls back to the raw resource
// name, so records the details API returned without an id still dedupe.
// Grid coordinates pass through as given; circle scans supply empty
// strings.
func ProjectRow(d model.PlaceDetail, keyword, gridLat, gridLng string) model.Row {
	return model.Row{
		PlaceID:         d.Identity(),
		Name:            d.DisplayName,
		BusinessStatus:  d.BusinessStatus,
		Address:         d.FormattedAddress,
		Lat:             d.Lat,
		Lng:             d.Lng,
		Types:           strings.Join(d.Types, ","),
		Rating:          d.Rating,
		UserRatingCount: d.UserRatingCount,
		Keyword:         keyword,
		GridLat:         gridLat,
		GridLng:         gridLng,
	}
}

// MatchedKeywords intersects a place's own categories with the requested
// list, preserving the place's ordering, comma-joined. Either side empty
// yields the empty string.
func MatchedKeywords(placeTypes, requested []string) string {
	if len(placeTypes) == 0 || len(requested) == 0 {
		return ""
	}
	allowed := make(map[string]struct{}, len(requested))
	for _, t := range requested {
		allowed[t] = struct{}{}
	}
	var matches []string
	for _, t := range placeTypes {
		if _, ok := allowed[t]; ok {
			matches = append(matches, t)
		}
	}
	return strings.Join(matches, ",")
}
