package scan

import (
	"context"
	"sync/atomic"

	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/insights"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// Stats tracks live counters for one run. Fields are atomic so the TUI
// can read them while the runner goroutine writes.
type Stats struct {
	CitiesTotal     atomic.Int64
	CitiesDone      atomic.Int64
	Probes          atomic.Int64
	Fetches         atomic.Int64
	InsightsFound   atomic.Int64
	DetailsResolved atomic.Int64
	RowsPrepared    atomic.Int64
	RowsAppended    atomic.Int64
	Errors          atomic.Int64
}

// countingAPI wraps the insights API with probe and fetch counters.
type countingAPI struct {
	api   API
	stats *Stats
}

func (c *countingAPI) Count(ctx context.Context, q insights.Query) (int, error) {
	c.stats.Probes.Add(1)
	return c.api.Count(ctx, q)
}

func (c *countingAPI) Places(ctx context.Context, q insights.Query) ([]model.PlaceInsight, error) {
	c.stats.Fetches.Add(1)
	return c.api.Places(ctx, q)
}
