package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/geo"
	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/insights"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

type opRecord struct {
	kind     string // "count" or "places"
	cats     []string
	statuses []string
}

// fakeAPI scripts counts and places per category subset, keyed by the
// comma-joined category list, and records every call in order.
type fakeAPI struct {
	mu         sync.Mutex
	counts     map[string]int
	places     map[string][]model.PlaceInsight
	countErrs  map[string]error
	placesErrs map[string]error
	ops        []opRecord
}

func subsetKey(cats []string) string {
	return strings.Join(cats, ",")
}

func (f *fakeAPI) record(kind string, q insights.Query) {
	cats := make([]string, len(q.Categories))
	copy(cats, q.Categories)
	statuses := make([]string, len(q.Statuses))
	copy(statuses, q.Statuses)
	f.ops = append(f.ops, opRecord{kind: kind, cats: cats, statuses: statuses})
}

func (f *fakeAPI) Count(ctx context.Context, q insights.Query) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("count", q)
	k := subsetKey(q.Categories)
	if err := f.countErrs[k]; err != nil {
		return 0, err
	}
	return f.counts[k], nil
}

func (f *fakeAPI) Places(ctx context.Context, q insights.Query) ([]model.PlaceInsight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("places", q)
	k := subsetKey(q.Categories)
	if err := f.placesErrs[k]; err != nil {
		return nil, err
	}
	return f.places[k], nil
}

func (f *fakeAPI) opKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.ops))
	for _, op := range f.ops {
		out = append(out, op.kind+":"+subsetKey(op.cats))
	}
	return out
}

func insightsFor(prefix string, n int) []model.PlaceInsight {
	out := make([]model.PlaceInsight, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.PlaceInsight{Place: fmt.Sprintf("places/%s%d", prefix, i)})
	}
	return out
}

func testCircle(t *testing.T) geo.Circle {
	t.Helper()
	c, err := geo.NewCircle(35.0456, -85.3097, 1000)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func assertOps(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("ops[%d] = %q, want %q\nall ops: %v", i, got[i], want[i], got)
		}
	}
}

func TestBackoffTruncatesTrailingHalf(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{
			"a,b,c,d,e": 250,
			"a,b,c":     150,
			"a,b":       80,
		},
		places: map[string][]model.PlaceInsight{
			"a,b": insightsFor("p", 2),
		},
	}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"a", "b", "c", "d", "e"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Fetch() returned %d insights, want 2", len(got))
	}

	// Five categories drop two, three drop one, two fit under the cap.
	assertOps(t, api.opKeys(), []string{
		"count:a,b,c,d,e",
		"count:a,b,c",
		"count:a,b",
		"places:a,b",
	})
}

func TestBackoffNeverFetchesOverCap(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{
			"a,b,c,d,e": 250,
			"a,b,c":     150,
			"a,b":       80,
		},
		places: map[string][]model.PlaceInsight{"a,b": insightsFor("p", 2)},
	}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, Logger: discard()}
	if _, err := f.Fetch(context.Background(), testCircle(t), []string{"a", "b", "c", "d", "e"}, nil); err != nil {
		t.Fatal(err)
	}

	for _, op := range api.ops {
		if op.kind != "places" {
			continue
		}
		if c := api.counts[subsetKey(op.cats)]; c > 100 {
			t.Errorf("fetched %v whose probed count %d exceeds the cap", op.cats, c)
		}
	}
}

func TestBackoffFrontOfOrderSurvives(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{
			"restaurant,cafe": 250,
			"restaurant":      80,
		},
		places: map[string][]model.PlaceInsight{
			"restaurant": insightsFor("r", 3),
		},
	}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"restaurant", "cafe"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("Fetch() returned %d insights, want 3", len(got))
	}

	for _, op := range api.ops {
		if subsetKey(op.cats) == "cafe" {
			t.Error("cafe was probed alone; truncation should only keep the front of the order")
		}
	}
}

func TestBackoffZeroCountStops(t *testing.T) {
	api := &fakeAPI{counts: map[string]int{"a,b": 0}}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Fetch() = %v, want empty", got)
	}
	assertOps(t, api.opKeys(), []string{"count:a,b"})
}

func TestBackoffSkipsOversizedSingleCategory(t *testing.T) {
	api := &fakeAPI{counts: map[string]int{"lodging": 5000}}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"lodging"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Fetch() = %v, want empty", got)
	}
	assertOps(t, api.opKeys(), []string{"count:lodging"})
}

func TestBackoffFetchesOversizedSingleWhenSkipOff(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{"lodging": 5000},
		places: map[string][]model.PlaceInsight{"lodging": insightsFor("l", 4)},
	}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: false, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"lodging"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 4 {
		t.Errorf("Fetch() returned %d insights, want 4", len(got))
	}
	assertOps(t, api.opKeys(), []string{"count:lodging", "places:lodging"})
}

func TestBackoffFallbackScanWalksOriginalOrder(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{
			"a,b,c": 900,
			"a,b":   600,
			"a":     200, // the survivor, itself over cap
			"b":     0,   // fallback candidate with no data
			"c":     50,  // first fallback that fits
		},
		places: map[string][]model.PlaceInsight{
			"c": insightsFor("c", 5),
		},
	}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, SingleTypeFallback: true, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"a", "b", "c"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 5 {
		t.Errorf("Fetch() returned %d insights, want 5", len(got))
	}
	assertOps(t, api.opKeys(), []string{
		"count:a,b,c",
		"count:a,b",
		"count:a",
		"count:b",
		"count:c",
		"places:c",
	})
}

func TestBackoffFallbackSkipsFailedCandidates(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{
			"a,b,c": 900,
			"a,b":   600,
			"a":     200,
			"c":     50,
		},
		countErrs: map[string]error{"b": errors.New("boom")},
		places:    map[string][]model.PlaceInsight{"c": insightsFor("c", 2)},
	}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, SingleTypeFallback: true, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"a", "b", "c"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v, fallback candidate failures should not surface", err)
	}
	if len(got) != 2 {
		t.Errorf("Fetch() returned %d insights, want 2", len(got))
	}
}

func TestBackoffSurfacesProbeError(t *testing.T) {
	api := &fakeAPI{countErrs: map[string]error{"a,b": errors.New("quota exceeded")}}
	f := &BackoffFetcher{API: api, Cap: 100, SkipLargeSingleType: true, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"a", "b"}, nil)
	if err == nil {
		t.Fatal("Fetch() expected error from failed probe")
	}
	if len(got) != 0 {
		t.Errorf("Fetch() = %v, want empty alongside the error", got)
	}
}

func TestSweepStopsAtOverallLimit(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{"c1": 6, "c2": 6, "c3": 4, "c4": 4, "c5": 4},
		places: map[string][]model.PlaceInsight{
			"c1": insightsFor("a", 6),
			"c2": insightsFor("b", 6),
			"c3": insightsFor("c", 4),
		},
	}
	f := &SweepFetcher{API: api, Cap: 100, OverallLimit: 10, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"c1", "c2", "c3", "c4", "c5"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 10 {
		t.Errorf("Fetch() returned %d insights, want exactly the limit 10", len(got))
	}

	// c1 and c2 cover the limit; c3 through c5 must never be probed.
	assertOps(t, api.opKeys(), []string{
		"count:c1", "places:c1",
		"count:c2", "places:c2",
	})
}

func TestSweepSkipsFailuresZeroesAndOversized(t *testing.T) {
	api := &fakeAPI{
		counts:    map[string]int{"c2": 0, "c3": 200, "c4": 5},
		countErrs: map[string]error{"c1": errors.New("boom")},
		places:    map[string][]model.PlaceInsight{"c4": insightsFor("d", 5)},
	}
	f := &SweepFetcher{API: api, Cap: 100, OverallLimit: 500, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"c1", "c2", "c3", "c4"}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v, individual category failures should not surface", err)
	}
	if len(got) != 5 {
		t.Errorf("Fetch() returned %d insights, want 5", len(got))
	}
	for _, op := range api.ops {
		if op.kind == "places" && subsetKey(op.cats) != "c4" {
			t.Errorf("unexpected fetch of %v", op.cats)
		}
	}
}

func TestSweepDedupesByResourceName(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{"c1": 2, "c2": 2},
		places: map[string][]model.PlaceInsight{
			"c1": {{Place: "places/p1"}, {Place: "places/p2"}},
			"c2": {{Place: "places/p2"}, {Place: "places/p3"}},
		},
	}
	f := &SweepFetcher{API: api, Cap: 100, OverallLimit: 500, Logger: discard()}

	got, err := f.Fetch(context.Background(), testCircle(t), []string{"c1", "c2"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("Fetch() returned %d insights, want 3 after dedupe", len(got))
	}
	want := []string{"places/p1", "places/p2", "places/p3"}
	for i, pi := range got {
		if pi.Place != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, pi.Place, want[i])
		}
	}
}

func TestNewFetcherSelectsStrategy(t *testing.T) {
	api := &fakeAPI{}
	p := model.ScanParams{Strategy: model.StrategyBackoff, CapPerRequest: 100}
	f, err := NewFetcher(api, p, discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.(*BackoffFetcher); !ok {
		t.Errorf("NewFetcher(backoff) = %T", f)
	}

	p.Strategy = model.StrategySweep
	f, err = NewFetcher(api, p, discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.(*SweepFetcher); !ok {
		t.Errorf("NewFetcher(sweep) = %T", f)
	}

	p.Strategy = "bisect"
	if _, err := NewFetcher(api, p, discard()); err == nil {
		t.Error("NewFetcher(bisect) expected error")
	}
}
