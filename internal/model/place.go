package model

import (
	"strconv"
	"time"
)

// Operating status values accepted by the area insights API.
const (
	StatusOperational       = "OPERATING_STATUS_OPERATIONAL"
	StatusTemporarilyClosed = "OPERATING_STATUS_TEMPORARILY_CLOSED"
	StatusPermanentlyClosed = "OPERATING_STATUS_PERMANENTLY_CLOSED"
)

// BusinessStatusClosedTemporarily is the place-details status kept when
// WriteOnlyClosed filtering is on.
const BusinessStatusClosedTemporarily = "CLOSED_TEMPORARILY"

// Scan modes.
const (
	ModePlaces = "places"
	ModeCount  = "count"
)

// Fetch strategies.
const (
	StrategyBackoff = "backoff"
	StrategySweep   = "sweep"
)

// PlaceInsight is one entry from a computeInsights places response. The
// Place field is an opaque resource name like "places/ChIJ...".
type PlaceInsight struct {
	Place string `json:"place"`
}

// PlaceDetail is the resolved record for one place resource.
type PlaceDetail struct {
	ID               string
	Name             string // resource name, e.g. "places/ChIJ..."
	DisplayName      string
	FormattedAddress string
	Lat              float64
	Lng              float64
	Types            []string
	Rating           float64
	UserRatingCount  int
	BusinessStatus   string
}

// Identity is the deduplication key: the place id when present, otherwise
// the raw resource name. Empty when the record carries neither.
func (d PlaceDetail) Identity() string {
	if d.ID != "" {
		return d.ID
	}
	return d.Name
}

// Row is one ledger row for a scanned place. Field order matches RowHeaders.
type Row struct {
	PlaceID         string
	Name            string
	BusinessStatus  string
	Address         string
	Lat             float64
	Lng             float64
	Types           string
	Rating          float64
	UserRatingCount int
	Keyword         string
	GridLat         string
	GridLng         string
}

// RowHeaders returns the canonical ledger header row.
func RowHeaders() []string {
	return []string{
		"place_id",
		"name",
		"business_status",
		"business_address",
		"lat",
		"lng",
		"types",
		"rating",
		"user_ratings_total",
		"keyword",
		"grid_lat",
		"grid_lng",
	}
}

// Values renders the row as strings in header order. Numeric fields the
// upstream record omitted stay zero-valued and render as empty cells.
func (r Row) Values() []string {
	return []string{
		r.PlaceID,
		r.Name,
		r.BusinessStatus,
		r.Address,
		floatCell(r.Lat),
		floatCell(r.Lng),
		r.Types,
		floatCell(r.Rating),
		intCell(r.UserRatingCount),
		r.Keyword,
		r.GridLat,
		r.GridLng,
	}
}

func floatCell(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func intCell(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// ShuffleParams controls category ordering for one run.
type ShuffleParams struct {
	Enabled   bool
	SeedMode  string // "fixed", "random" or "daily"
	FixedSeed int64
}

// ScanParams is the resolved, immutable context for scanning one city.
// It is built once per city from configuration and presets; nothing
// mutates it afterward, so an all-cities run cannot leak one city's
// values into the next.
type ScanParams struct {
	City string
	Lat  float64
	Lng  float64
	Tab  string

	LocationMode string
	RadiusM      int

	Mode     string
	Strategy string

	// Categories is the resolved category list, never empty. Statuses
	// holds the operating statuses sent on probes and fetches.
	Categories []string
	Statuses   []string

	CapPerRequest int
	OverallLimit  int
	DetailPause   time.Duration

	SkipLargeSingleType bool
	SingleTypeFallback  bool
	WriteOnlyClosed     bool
	WriteEnabled        bool

	Shuffle ShuffleParams

	// SampleCount is how many resolved details get logged for spot
	// checks. Zero disables sampling.
	SampleCount int
}
