// Package snapshot writes local audit copies of each batch before it is
// appended to the ledger: a CSV stamped with the ISO week, and optionally
// a GeoJSON rendering for map tooling.
package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// WriteCSV saves rows under dir as "{City}_snapshot_{YYYY-Www}.csv" and
// returns the absolute path. A snapshot from the same ISO week is
// overwritten, so the file always holds the week's latest batch.
func WriteCSV(dir, city string, rows []model.Row, headers []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s_snapshot_%s.csv", safeName(city), isoWeekStamp(time.Now().UTC()))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if len(headers) > 0 {
		if err := w.Write(headers); err != nil {
			return "", fmt.Errorf("writing headers: %w", err)
		}
	}
	for _, r := range rows {
		if err := w.Write(r.Values()); err != nil {
			return "", fmt.Errorf("writing row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing snapshot: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// WriteGeoJSON saves rows under dir as "{City}_snapshot_{YYYY-Www}.geojson"
// with one point feature per row. Rows without coordinates are skipped.
func WriteGeoJSON(dir, city string, rows []model.Row) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s_snapshot_%s.geojson", safeName(city), isoWeekStamp(time.Now().UTC()))
	path := filepath.Join(dir, name)

	data, err := json.Marshal(FeatureCollection(rows))
	if err != nil {
		return "", fmt.Errorf("encoding geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing geojson: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// FeatureCollection renders rows as GeoJSON point features. Rows without
// coordinates are skipped rather than plotted at (0, 0).
func FeatureCollection(rows []model.Row) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range rows {
		if r.Lat == 0 && r.Lng == 0 {
			continue
		}
		f := geojson.NewFeature(orb.Point{r.Lng, r.Lat})
		f.Properties = geojson.Properties{
			"place_id":           r.PlaceID,
			"name":               r.Name,
			"business_status":    r.BusinessStatus,
			"business_address":   r.Address,
			"types":              r.Types,
			"rating":             r.Rating,
			"user_ratings_total": r.UserRatingCount,
			"keyword":            r.Keyword,
		}
		fc.Append(f)
	}
	return fc
}

// isoWeekStamp renders an ISO-8601 year-week stamp like "2025-W38".
func isoWeekStamp(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// safeName keeps letters, digits, underscore, dash and space from a city
// name, then collapses spaces to underscores for the filename.
func safeName(city string) string {
	var b strings.Builder
	for _, r := range city {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}
