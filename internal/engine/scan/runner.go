// Package scan orchestrates city scans: category selection, capacity-aware
// fetching, detail resolution, projection, deduplication and the append.
package scan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/geo"
	"github.com/shawnBuilds/suspended-business-scanner/internal/ledger"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
	"github.com/shawnBuilds/suspended-business-scanner/internal/snapshot"
)

// DetailResolver turns an opaque place resource name into a detail record.
type DetailResolver interface {
	Resolve(ctx context.Context, resource string) (model.PlaceDetail, bool)
}

// Notifier delivers the per-city summary once after a multi-city run.
type Notifier interface {
	Send(ctx context.Context, counts map[string]int) error
}

// Runner executes scans against a wired environment. Fields are set once
// before the first run; Stats may be nil when nobody watches counters.
type Runner struct {
	API     API
	Details DetailResolver
	Ledger  ledger.Ledger

	// SnapshotDir, when set, receives a week-stamped CSV of each batch
	// right before it is appended. Snapshot failures are logged, never
	// fatal.
	SnapshotDir string

	// Notifier, when set, fires once after RunAll finishes every city.
	Notifier Notifier

	Logger *log.Logger
	Stats  *Stats

	// Now overrides the clock for the daily shuffle seed. Nil means
	// time.Now.
	Now func() time.Time
}

// RunCity scans one city end to end and returns how many new rows were
// appended to its ledger tab.
//
// Failures split two ways: configuration problems (bad region mode, a tab
// outside the _Raw namespace, ledger errors) return an error and abort the
// city, while upstream API failures during fetching are logged, counted
// and leave the city with zero results.
func (r *Runner) RunCity(ctx context.Context, p model.ScanParams) (int, error) {
	defer r.stats().CitiesDone.Add(1)

	region, err := geo.BuildRegion(p.LocationMode, p.Lat, p.Lng, p.RadiusM)
	if err != nil {
		return 0, err
	}
	if err := ledger.ValidateRawTab(p.Tab); err != nil {
		return 0, err
	}

	r.Logger.Info("=== scan start ===",
		"city", p.City, "mode", p.Mode, "strategy", p.Strategy,
		"radius_m", p.RadiusM, "tab", p.Tab,
		"categories", p.Categories, "statuses", p.Statuses)

	if p.Mode == model.ModeCount {
		return 0, r.runCountDiagnostic(ctx, region, p)
	}

	order := SelectOrder(p.Categories, p.Shuffle, p.City, r.now(), r.Logger)
	fetcher, err := NewFetcher(&countingAPI{api: r.API, stats: r.stats()}, p, r.Logger)
	if err != nil {
		return 0, err
	}

	found, err := fetcher.Fetch(ctx, region, order, p.Statuses)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.stats().Errors.Add(1)
		r.Logger.Warn("fetch aborted", "city", p.City, "err", err)
	}
	r.stats().InsightsFound.Add(int64(len(found)))
	r.Logger.Info("insights gathered", "city", p.City, "count", len(found))

	details := r.resolveDetails(ctx, found, p)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.Logger.Info("details resolved", "city", p.City, "count", len(details))
	if len(details) == 0 {
		r.Logger.Info("nothing to write", "city", p.City)
		return 0, nil
	}
	r.logSample(details, p.SampleCount)

	rows := r.projectRows(details, p)
	r.stats().RowsPrepared.Add(int64(len(rows)))
	if len(rows) == 0 {
		r.Logger.Info("no rows prepared after filtering", "city", p.City)
		return 0, nil
	}

	if !p.WriteEnabled {
		r.Logger.Info("write disabled, rows prepared only", "city", p.City, "rows", len(rows))
		return 0, nil
	}

	headers := model.RowHeaders()
	if err := r.Ledger.EnsureTab(ctx, p.Tab, headers); err != nil {
		return 0, fmt.Errorf("ensuring tab %q: %w", p.Tab, err)
	}
	column, err := r.Ledger.ReadIdentityColumn(ctx, p.Tab)
	if err != nil {
		return 0, fmt.Errorf("reading identities of %q: %w", p.Tab, err)
	}

	unique := DedupeNew(rows, IdentitySet(column))
	if len(unique) == 0 {
		r.Logger.Info("no new unique rows", "city", p.City, "prepared", len(rows))
		return 0, nil
	}

	if r.SnapshotDir != "" {
		if path, err := snapshot.WriteCSV(r.SnapshotDir, p.City, unique, headers); err != nil {
			r.Logger.Warn("snapshot failed", "city", p.City, "err", err)
		} else {
			r.Logger.Info("snapshot written", "path", path)
		}
	}

	if err := r.Ledger.AppendRows(ctx, p.Tab, unique); err != nil {
		return 0, fmt.Errorf("appending %d rows to %q: %w", len(unique), p.Tab, err)
	}
	r.stats().RowsAppended.Add(int64(len(unique)))
	r.Logger.Info("appended new rows", "city", p.City, "tab", p.Tab, "rows", len(unique))
	return len(unique), nil
}

// RunAll scans every city strictly in order, one finishing before the next
// starts, and returns new-row counts per city. A city error aborts the
// remaining cities; the notifier only fires after a complete pass.
func (r *Runner) RunAll(ctx context.Context, cities []model.ScanParams) (map[string]int, error) {
	r.stats().CitiesTotal.Store(int64(len(cities)))
	counts := make(map[string]int, len(cities))

	for _, p := range cities {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		n, err := r.RunCity(ctx, p)
		if err != nil {
			return counts, fmt.Errorf("city %s: %w", p.City, err)
		}
		counts[p.City] = n
	}

	if r.Notifier != nil {
		if err := r.Notifier.Send(ctx, counts); err != nil {
			r.Logger.Warn("summary notification failed", "err", err)
		} else {
			r.Logger.Info("summary notification sent", "cities", len(counts))
		}
	}
	return counts, nil
}

// statusProbeOrder is the fixed sequence the count diagnostic walks.
var statusProbeOrder = []string{
	model.StatusPermanentlyClosed,
	model.StatusTemporarilyClosed,
	model.StatusOperational,
}

// runCountDiagnostic probes each operating status with the full category
// list and logs the counts. It never fetches places and never writes; a
// failed probe logs as zero and the sweep keeps going.
func (r *Runner) runCountDiagnostic(ctx context.Context, region geo.Circle, p model.ScanParams) error {
	api := &countingAPI{api: r.API, stats: r.stats()}
	results := make(map[string]int, len(statusProbeOrder))

	for _, status := range statusProbeOrder {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := api.Count(ctx, query(region, p.Categories, []string{status}))
		if err != nil {
			r.stats().Errors.Add(1)
			r.Logger.Warn("count probe failed", "status", status, "err", err)
			count = 0
		}
		results[status] = count
		r.Logger.Info("status count", "city", p.City, "status", status, "count", count)
	}

	r.Logger.Info("count summary", "city", p.City,
		"permanently_closed", results[model.StatusPermanentlyClosed],
		"temporarily_closed", results[model.StatusTemporarilyClosed],
		"operational", results[model.StatusOperational])
	return nil
}

// resolveDetails walks the gathered insights in order, resolving each
// resource until the overall limit. Unresolvable places are skipped; the
// details client paces the lookups.
func (r *Runner) resolveDetails(ctx context.Context, found []model.PlaceInsight, p model.ScanParams) []model.PlaceDetail {
	limit := p.OverallLimit
	if limit <= 0 {
		limit = 500
	}

	var details []model.PlaceDetail
	for _, pi := range found {
		if ctx.Err() != nil {
			break
		}
		if len(details) >= limit {
			r.Logger.Info("detail limit reached", "limit", limit)
			break
		}
		if pi.Place == "" {
			continue
		}
		d, ok := r.Details.Resolve(ctx, pi.Place)
		if !ok {
			continue
		}
		details = append(details, d)
		r.stats().DetailsResolved.Add(1)
	}
	return details
}

// projectRows filters and maps details into ledger rows. The keyword
// column records which requested categories the place itself carries,
// matched against the configured order, not the shuffled one.
func (r *Runner) projectRows(details []model.PlaceDetail, p model.ScanParams) []model.Row {
	var rows []model.Row
	for _, d := range details {
		if p.WriteOnlyClosed && d.BusinessStatus != model.BusinessStatusClosedTemporarily {
			continue
		}
		rows = append(rows, ProjectRow(d, MatchedKeywords(d.Types, p.Categories), "", ""))
	}
	return rows
}

func (r *Runner) logSample(details []model.PlaceDetail, n int) {
	if n <= 0 {
		return
	}
	if n > len(details) {
		n = len(details)
	}
	for _, d := range details[:n] {
		r.Logger.Debug("detail sample",
			"name", d.DisplayName,
			"status", d.BusinessStatus,
			"rating", d.Rating,
			"ratings", d.UserRatingCount,
			"address", d.FormattedAddress,
			"lat", d.Lat, "lng", d.Lng,
			"types", strings.Join(d.Types, ","))
	}
}

func (r *Runner) stats() *Stats {
	if r.Stats == nil {
		r.Stats = &Stats{}
	}
	return r.Stats
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
