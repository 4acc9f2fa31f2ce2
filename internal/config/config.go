// Package config holds the typed scan configuration and credential loading.
//
// Configuration splits in two: Config is tunable behavior loaded from an
// optional JSON file on top of built-in defaults, and Secrets is
// credentials loaded from the environment or a .env file. Secrets never
// appear in the JSON config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// Config is the full scan configuration.
type Config struct {
	// City is the default city for single-city runs. Cities is the
	// ordered list an all-cities run walks.
	City   string   `json:"city"`
	Cities []string `json:"cities"`

	Region  RegionConfig  `json:"region"`
	Scan    ScanConfig    `json:"scan"`
	Ledger  LedgerConfig  `json:"ledger"`
	Logging LoggingConfig `json:"logging"`
	Notify  NotifyConfig  `json:"notify"`
}

// RegionConfig describes the query region around each city center.
type RegionConfig struct {
	Mode    string `json:"mode"`
	RadiusM int    `json:"radius_m"`
}

// ScanConfig holds the knobs for one scan pass.
type ScanConfig struct {
	Mode     string `json:"mode"`
	Strategy string `json:"strategy"`

	// Types is the candidate category list. When empty, Type, then
	// Keyword, then the built-in default fill in a single category.
	Types   []string `json:"types"`
	Type    string   `json:"type"`
	Keyword string   `json:"keyword"`

	// Statuses are the operating statuses matched by places-mode
	// queries. Empty falls back to both closed statuses.
	Statuses []string `json:"statuses"`

	CapPerRequest int `json:"cap_per_request"`
	OverallLimit  int `json:"overall_limit"`
	DetailPauseMs int `json:"detail_pause_ms"`

	SkipLargeSingleType bool `json:"skip_large_single_type"`
	SingleTypeFallback  bool `json:"single_type_fallback"`
	WriteOnlyClosed     bool `json:"write_only_closed"`
	WriteEnabled        bool `json:"write_enabled"`

	Shuffle ShuffleConfig `json:"shuffle"`

	DetailsSampleCount int `json:"details_sample_count"`
}

// ShuffleConfig controls category ordering across runs.
type ShuffleConfig struct {
	Enabled   bool   `json:"enabled"`
	SeedMode  string `json:"seed_mode"`
	FixedSeed int64  `json:"fixed_seed"`
}

// LedgerConfig selects and parameterizes the row store.
type LedgerConfig struct {
	Backend string `json:"backend"` // "sheets" or "sqlite"
	DBPath  string `json:"db_path"`
	// Tab overrides the per-city preset tab for single-city runs.
	Tab string `json:"tab"`
}

// LoggingConfig maps the verbosity toggles onto the file logger.
type LoggingConfig struct {
	Summary      bool `json:"summary"`
	RequestBuild bool `json:"request_build"`
	RequestSend  bool `json:"request_send"`
	ResponseKeys bool `json:"response_keys"`
	Verbose      bool `json:"verbose"`
}

// Level resolves the toggles to a single file log level. Any debug-class
// toggle pulls the level down to debug so its lines actually land.
func (l LoggingConfig) Level() log.Level {
	if l.Verbose || l.RequestBuild || l.RequestSend || l.ResponseKeys {
		return log.DebugLevel
	}
	if !l.Summary {
		return log.WarnLevel
	}
	return log.InfoLevel
}

// NotifyConfig controls the post-run summary email.
type NotifyConfig struct {
	Enabled       bool     `json:"enabled"`
	To            []string `json:"to"`
	SheetLink     string   `json:"sheet_link"`
	TemplatesPath string   `json:"templates_path"`
}

// Default returns the built-in configuration. JSON files overlay it, so an
// absent field keeps its default rather than zeroing out.
func Default() *Config {
	return &Config{
		City:   "Chattanooga",
		Cities: []string{"Chattanooga", "Medellin", "Santa Cruz"},
		Region: RegionConfig{
			Mode:    "circle",
			RadiusM: 40234, // ~25 miles
		},
		Scan: ScanConfig{
			Mode:     model.ModePlaces,
			Strategy: model.StrategyBackoff,
			Types: []string{
				"restaurant", "cafe", "bakery", "bar", "coffee_shop",
				"meal_takeaway", "meal_delivery", "grocery_store",
				"convenience_store", "liquor_store", "pharmacy",
				"gas_station", "gym", "hardware_store", "electronics_store",
				"clothing_store", "department_store", "book_store",
				"home_goods_store", "furniture_store", "lodging",
			},
			Keyword:             "cafe",
			Statuses:            []string{model.StatusTemporarilyClosed},
			CapPerRequest:       100,
			OverallLimit:        500,
			DetailPauseMs:       100,
			SkipLargeSingleType: true,
			SingleTypeFallback:  false,
			WriteOnlyClosed:     true,
			WriteEnabled:        true,
			Shuffle: ShuffleConfig{
				Enabled:  false,
				SeedMode: "daily",
			},
			DetailsSampleCount: 5,
		},
		Ledger: LedgerConfig{
			Backend: "sheets",
			DBPath:  "data/sbscan.db",
		},
		Logging: LoggingConfig{
			Summary:      true,
			ResponseKeys: true,
		},
		Notify: NotifyConfig{
			Enabled: false,
		},
	}
}

// Load reads the JSON config at path over the defaults. An empty path
// returns the defaults untouched. A path that exists but cannot be parsed
// is a hard error, not a silent fallback.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no run could execute with.
func (c *Config) Validate() error {
	if len(c.Cities) == 0 {
		return fmt.Errorf("cities list is empty")
	}

	switch c.Scan.Mode {
	case model.ModePlaces, model.ModeCount:
	default:
		return fmt.Errorf("unknown scan mode %q (want %q or %q)", c.Scan.Mode, model.ModePlaces, model.ModeCount)
	}

	switch c.Scan.Strategy {
	case model.StrategyBackoff, model.StrategySweep:
	default:
		return fmt.Errorf("unknown fetch strategy %q (want %q or %q)", c.Scan.Strategy, model.StrategyBackoff, model.StrategySweep)
	}

	switch c.Region.Mode {
	case "circle", "region", "customArea":
	default:
		return fmt.Errorf("unknown location mode %q", c.Region.Mode)
	}

	if c.Region.RadiusM <= 0 {
		return fmt.Errorf("region radius must be positive, got %d", c.Region.RadiusM)
	}
	if c.Scan.CapPerRequest <= 0 {
		return fmt.Errorf("cap_per_request must be positive, got %d", c.Scan.CapPerRequest)
	}
	if c.Scan.OverallLimit <= 0 {
		return fmt.Errorf("overall_limit must be positive, got %d", c.Scan.OverallLimit)
	}

	switch c.Scan.Shuffle.SeedMode {
	case "", "fixed", "random", "daily":
	default:
		return fmt.Errorf("unknown shuffle seed mode %q", c.Scan.Shuffle.SeedMode)
	}

	switch c.Ledger.Backend {
	case "sheets", "sqlite":
	default:
		return fmt.Errorf("unknown ledger backend %q (want \"sheets\" or \"sqlite\")", c.Ledger.Backend)
	}

	return nil
}

// CityPreset pins the scan circle center and the ledger tab for one city.
type CityPreset struct {
	Lat float64
	Lng float64
	Tab string
}

// Presets returns the built-in city table.
func Presets() map[string]CityPreset {
	return map[string]CityPreset{
		"Chattanooga": {Lat: 35.0456, Lng: -85.3097, Tab: "Chattanooga_Raw"},
		"Medellin":    {Lat: 6.2442, Lng: -75.5812, Tab: "Medellin_Raw"},
		"Santa Cruz":  {Lat: 36.9741, Lng: -122.0308, Tab: "SantaCruz_Raw"},
	}
}

// ParamsForCity resolves one city into an immutable parameter set.
// tabOverride substitutes the preset tab when non-empty; all-cities runs
// pass "" so every city keeps its own tab.
func (c *Config) ParamsForCity(city, tabOverride string) (model.ScanParams, error) {
	preset, ok := Presets()[city]
	if !ok {
		known := make([]string, 0, len(Presets()))
		for name := range Presets() {
			known = append(known, name)
		}
		sort.Strings(known)
		return model.ScanParams{}, fmt.Errorf("unknown city %q, configured presets: %s", city, strings.Join(known, ", "))
	}

	tab := preset.Tab
	if c.Ledger.Tab != "" {
		tab = c.Ledger.Tab
	}
	if tabOverride != "" {
		tab = tabOverride
	}

	return model.ScanParams{
		City:                city,
		Lat:                 preset.Lat,
		Lng:                 preset.Lng,
		Tab:                 tab,
		LocationMode:        c.Region.Mode,
		RadiusM:             c.Region.RadiusM,
		Mode:                c.Scan.Mode,
		Strategy:            c.Scan.Strategy,
		Categories:          c.resolveCategories(),
		Statuses:            c.resolveStatuses(),
		CapPerRequest:       c.Scan.CapPerRequest,
		OverallLimit:        c.Scan.OverallLimit,
		DetailPause:         time.Duration(c.Scan.DetailPauseMs) * time.Millisecond,
		SkipLargeSingleType: c.Scan.SkipLargeSingleType,
		SingleTypeFallback:  c.Scan.SingleTypeFallback,
		WriteOnlyClosed:     c.Scan.WriteOnlyClosed,
		WriteEnabled:        c.Scan.WriteEnabled,
		Shuffle: model.ShuffleParams{
			Enabled:   c.Scan.Shuffle.Enabled,
			SeedMode:  c.Scan.Shuffle.SeedMode,
			FixedSeed: c.Scan.Shuffle.FixedSeed,
		},
		SampleCount: c.Scan.DetailsSampleCount,
	}, nil
}

// resolveCategories applies the fallback chain: the configured list, then
// the single type, then the trimmed keyword, then "restaurant". The result
// is never empty, so downstream queries never carry an empty type filter.
func (c *Config) resolveCategories() []string {
	if len(c.Scan.Types) > 0 {
		out := make([]string, len(c.Scan.Types))
		copy(out, c.Scan.Types)
		return out
	}
	if c.Scan.Type != "" {
		return []string{c.Scan.Type}
	}
	if kw := strings.TrimSpace(c.Scan.Keyword); kw != "" {
		return []string{kw}
	}
	return []string{"restaurant"}
}

// resolveStatuses defaults an empty status list to both closed statuses.
func (c *Config) resolveStatuses() []string {
	if len(c.Scan.Statuses) > 0 {
		out := make([]string, len(c.Scan.Statuses))
		copy(out, c.Scan.Statuses)
		return out
	}
	return []string{model.StatusPermanentlyClosed, model.StatusTemporarilyClosed}
}

// CityOrder returns the cities an all-cities run walks, in order.
func (c *Config) CityOrder() []string {
	if len(c.Cities) > 0 {
		out := make([]string, len(c.Cities))
		copy(out, c.Cities)
		return out
	}
	return []string{"Chattanooga", "Medellin", "Santa Cruz"}
}
