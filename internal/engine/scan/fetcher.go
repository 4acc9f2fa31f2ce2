package scan

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/geo"
	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/insights"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// API is the slice of the insights client the fetch strategies use.
type API interface {
	Count(ctx context.Context, q insights.Query) (int, error)
	Places(ctx context.Context, q insights.Query) ([]model.PlaceInsight, error)
}

// Fetcher is a capacity-bounded fetch strategy. Implementations must never
// issue a places fetch for a subset whose probed count exceeds the cap,
// except where the skip policy explicitly allows an oversized single
// category through.
type Fetcher interface {
	Fetch(ctx context.Context, region geo.Circle, categories, statuses []string) ([]model.PlaceInsight, error)
}

// NewFetcher selects the strategy named by the run parameters.
func NewFetcher(api API, p model.ScanParams, logger *log.Logger) (Fetcher, error) {
	switch p.Strategy {
	case "", model.StrategyBackoff:
		return &BackoffFetcher{
			API:                 api,
			Cap:                 p.CapPerRequest,
			SkipLargeSingleType: p.SkipLargeSingleType,
			SingleTypeFallback:  p.SingleTypeFallback,
			Logger:              logger,
		}, nil
	case model.StrategySweep:
		return &SweepFetcher{
			API:          api,
			Cap:          p.CapPerRequest,
			OverallLimit: p.OverallLimit,
			Logger:       logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", p.Strategy)
	}
}

func query(region geo.Circle, categories, statuses []string) insights.Query {
	return insights.Query{Region: region, Categories: categories, Statuses: statuses}
}

// BackoffFetcher narrows one working subset until its probed count fits
// under the cap: probe, and while the count exceeds the cap, drop the
// trailing half (at least one element) and probe again. One fetch at most.
type BackoffFetcher struct {
	API                 API
	Cap                 int
	SkipLargeSingleType bool
	SingleTypeFallback  bool
	Logger              *log.Logger
}

func (f *BackoffFetcher) Fetch(ctx context.Context, region geo.Circle, categories, statuses []string) ([]model.PlaceInsight, error) {
	working := make([]string, len(categories))
	copy(working, categories)

	for len(working) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		count, err := f.API.Count(ctx, query(region, working, statuses))
		if err != nil {
			return nil, fmt.Errorf("probing %d categories: %w", len(working), err)
		}
		f.Logger.Info("probed subset", "types", working, "count", count)

		if count == 0 {
			// Nothing matches anywhere in this subset.
			return nil, nil
		}

		if count <= f.Cap {
			return f.fetch(ctx, region, working, statuses)
		}

		if len(working) == 1 {
			if !f.SkipLargeSingleType {
				// Skip policy off: take the oversized category as-is.
				return f.fetch(ctx, region, working, statuses)
			}
			f.Logger.Info("single category over cap, skipping", "type", working[0], "count", count, "cap", f.Cap)
			if f.SingleTypeFallback {
				return f.fallbackScan(ctx, region, categories, working[0], statuses)
			}
			return nil, nil
		}

		drop := max(1, len(working)/2)
		working = working[:len(working)-drop]
		f.Logger.Info("subset over cap, truncating", "dropped", drop, "retry_with", working)
	}
	return nil, nil
}

func (f *BackoffFetcher) fetch(ctx context.Context, region geo.Circle, categories, statuses []string) ([]model.PlaceInsight, error) {
	places, err := f.API.Places(ctx, query(region, categories, statuses))
	if err != nil {
		return nil, fmt.Errorf("fetching %d categories: %w", len(categories), err)
	}
	f.Logger.Info("fetched places", "types", categories, "returned", len(places))
	return places, nil
}

// fallbackScan probes every other category from the original list, in its
// original order, and fetches the first one whose count fits under the
// cap. Probe and fetch failures skip to the next candidate, so the scan
// itself never fails.
func (f *BackoffFetcher) fallbackScan(ctx context.Context, region geo.Circle, original []string, exclude string, statuses []string) ([]model.PlaceInsight, error) {
	f.Logger.Info("scanning single-category fallbacks", "exclude", exclude)
	for _, t := range original {
		if t == exclude {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sub := []string{t}
		count, err := f.API.Count(ctx, query(region, sub, statuses))
		if err != nil {
			f.Logger.Warn("fallback probe failed", "type", t, "err", err)
			continue
		}
		f.Logger.Info("probed subset", "types", sub, "count", count)
		if count == 0 {
			continue
		}
		if count > f.Cap {
			f.Logger.Info("single category over cap, skipping", "type", t, "count", count, "cap", f.Cap)
			continue
		}

		places, err := f.API.Places(ctx, query(region, sub, statuses))
		if err != nil {
			f.Logger.Warn("fallback fetch failed", "type", t, "err", err)
			continue
		}
		f.Logger.Info("fetched places", "types", sub, "returned", len(places))
		return places, nil
	}
	return nil, nil
}

// SweepFetcher probes every category individually in input order and
// merges each batch that fits under the cap, deduplicating by place
// resource, until the overall limit is reached. Oversized categories are
// dropped, never subdivided, and individual failures skip that category.
type SweepFetcher struct {
	API          API
	Cap          int
	OverallLimit int
	Logger       *log.Logger
}

func (f *SweepFetcher) Fetch(ctx context.Context, region geo.Circle, categories, statuses []string) ([]model.PlaceInsight, error) {
	limit := f.OverallLimit
	if limit <= 0 {
		limit = 500
	}
	f.Logger.Info("sweeping categories", "types", categories, "cap", f.Cap, "overall_limit", limit)

	var merged []model.PlaceInsight
	seen := make(map[string]struct{})

	for _, t := range categories {
		if err := ctx.Err(); err != nil {
			return merged, err
		}

		sub := []string{t}
		count, err := f.API.Count(ctx, query(region, sub, statuses))
		if err != nil {
			f.Logger.Warn("probe failed", "type", t, "err", err)
			continue
		}
		f.Logger.Info("probed subset", "types", sub, "count", count)
		if count == 0 {
			continue
		}
		if count > f.Cap {
			f.Logger.Info("single category over cap, skipping", "type", t, "count", count, "cap", f.Cap)
			continue
		}

		places, err := f.API.Places(ctx, query(region, sub, statuses))
		if err != nil {
			f.Logger.Warn("fetch failed", "type", t, "err", err)
			continue
		}

		added := 0
		for _, pi := range places {
			if pi.Place == "" {
				continue
			}
			if _, dup := seen[pi.Place]; dup {
				continue
			}
			seen[pi.Place] = struct{}{}
			merged = append(merged, pi)
			added++
			if len(merged) >= limit {
				break
			}
		}
		f.Logger.Info("merged places", "type", t, "returned", len(places), "added", added, "total", len(merged))

		if len(merged) >= limit {
			f.Logger.Info("overall limit reached", "limit", limit)
			break
		}
	}

	f.Logger.Info("sweep finished", "total", len(merged))
	return merged, nil
}
