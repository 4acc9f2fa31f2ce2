package scan

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

type fakeResolver struct {
	details map[string]model.PlaceDetail
}

func (f *fakeResolver) Resolve(ctx context.Context, resource string) (model.PlaceDetail, bool) {
	d, ok := f.details[resource]
	return d, ok
}

// memLedger keeps everything in maps and records which tabs were touched.
type memLedger struct {
	mu         sync.Mutex
	identities map[string][]string
	appended   map[string][]model.Row
	ensured    []string
}

func newMemLedger() *memLedger {
	return &memLedger{
		identities: make(map[string][]string),
		appended:   make(map[string][]model.Row),
	}
}

func (l *memLedger) EnsureTab(ctx context.Context, tab string, headers []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensured = append(l.ensured, tab)
	if _, ok := l.identities[tab]; !ok {
		l.identities[tab] = []string{"place_id"}
	}
	return nil
}

func (l *memLedger) ReadIdentityColumn(ctx context.Context, tab string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.identities[tab]))
	copy(out, l.identities[tab])
	return out, nil
}

func (l *memLedger) AppendRows(ctx context.Context, tab string, rows []model.Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appended[tab] = append(l.appended[tab], rows...)
	for _, r := range rows {
		l.identities[tab] = append(l.identities[tab], r.PlaceID)
	}
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	got   map[string]int
	err   error
}

func (n *fakeNotifier) Send(ctx context.Context, counts map[string]int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.got = counts
	return n.err
}

func testParams(tab string) model.ScanParams {
	return model.ScanParams{
		City:                "Chattanooga",
		Lat:                 35.0456,
		Lng:                 -85.3097,
		Tab:                 tab,
		LocationMode:        "circle",
		RadiusM:             1000,
		Mode:                model.ModePlaces,
		Strategy:            model.StrategyBackoff,
		Categories:          []string{"restaurant", "cafe"},
		Statuses:            []string{model.StatusTemporarilyClosed},
		CapPerRequest:       100,
		OverallLimit:        500,
		DetailPause:         time.Millisecond,
		SkipLargeSingleType: true,
		WriteOnlyClosed:     true,
		WriteEnabled:        true,
		SampleCount:         5,
	}
}

func closedDetail(id string, types ...string) model.PlaceDetail {
	return model.PlaceDetail{
		ID:             id,
		Name:           "places/" + id,
		DisplayName:    "Detail " + id,
		Lat:            35.0,
		Lng:            -85.0,
		Types:          types,
		BusinessStatus: model.BusinessStatusClosedTemporarily,
	}
}

func TestRunCityEndToEnd(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{"restaurant,cafe": 3},
		places: map[string][]model.PlaceInsight{
			"restaurant,cafe": {
				{Place: "places/ChIJ1"},
				{Place: "places/ChIJ2"},
				{Place: "places/ChIJ3"},
			},
		},
	}
	open := model.PlaceDetail{ID: "ChIJ2", Name: "places/ChIJ2", BusinessStatus: "OPERATIONAL"}
	resolver := &fakeResolver{details: map[string]model.PlaceDetail{
		"places/ChIJ1": closedDetail("ChIJ1", "restaurant"),
		"places/ChIJ2": open,
		"places/ChIJ3": closedDetail("ChIJ3", "cafe", "bar"),
	}}
	led := newMemLedger()
	led.identities["Chattanooga_Raw"] = []string{"place_id", "ChIJ3"} // already recorded

	snapDir := t.TempDir()
	stats := &Stats{}
	r := &Runner{
		API:         api,
		Details:     resolver,
		Ledger:      led,
		SnapshotDir: snapDir,
		Logger:      discard(),
		Stats:       stats,
	}

	n, err := r.RunCity(context.Background(), testParams("Chattanooga_Raw"))
	if err != nil {
		t.Fatalf("RunCity() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RunCity() = %d new rows, want 1", n)
	}

	appended := led.appended["Chattanooga_Raw"]
	if len(appended) != 1 {
		t.Fatalf("appended %d rows, want 1", len(appended))
	}
	if appended[0].PlaceID != "ChIJ1" {
		t.Errorf("appended row id = %q, want ChIJ1 (ChIJ2 open, ChIJ3 already present)", appended[0].PlaceID)
	}
	if appended[0].Keyword != "restaurant" {
		t.Errorf("Keyword = %q, want the matched category", appended[0].Keyword)
	}

	snaps, err := filepath.Glob(filepath.Join(snapDir, "Chattanooga_snapshot_*.csv"))
	if err != nil || len(snaps) != 1 {
		t.Errorf("snapshot files = %v (err %v), want one week-stamped CSV", snaps, err)
	}

	if got := stats.Probes.Load(); got != 1 {
		t.Errorf("Probes = %d, want 1", got)
	}
	if got := stats.Fetches.Load(); got != 1 {
		t.Errorf("Fetches = %d, want 1", got)
	}
	if got := stats.InsightsFound.Load(); got != 3 {
		t.Errorf("InsightsFound = %d, want 3", got)
	}
	if got := stats.DetailsResolved.Load(); got != 3 {
		t.Errorf("DetailsResolved = %d, want 3", got)
	}
	if got := stats.RowsPrepared.Load(); got != 2 {
		t.Errorf("RowsPrepared = %d, want 2 (open place filtered)", got)
	}
	if got := stats.RowsAppended.Load(); got != 1 {
		t.Errorf("RowsAppended = %d, want 1", got)
	}
}

func TestRunCityRefusesNonRawTab(t *testing.T) {
	api := &fakeAPI{}
	r := &Runner{API: api, Details: &fakeResolver{}, Ledger: newMemLedger(), Logger: discard()}

	_, err := r.RunCity(context.Background(), testParams("Chattanooga_View"))
	if err == nil {
		t.Fatal("RunCity() expected error for non-_Raw tab")
	}
	if len(api.ops) != 0 {
		t.Errorf("made %d API calls before tab validation, want 0", len(api.ops))
	}
}

func TestRunCityRejectsUnsupportedLocationMode(t *testing.T) {
	api := &fakeAPI{}
	r := &Runner{API: api, Details: &fakeResolver{}, Ledger: newMemLedger(), Logger: discard()}

	p := testParams("Chattanooga_Raw")
	p.LocationMode = "customArea"
	if _, err := r.RunCity(context.Background(), p); err == nil {
		t.Fatal("RunCity() expected error for unsupported location mode")
	}
	if len(api.ops) != 0 {
		t.Errorf("made %d API calls before region validation, want 0", len(api.ops))
	}
}

func TestRunCityWriteDisabled(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{"restaurant,cafe": 1},
		places: map[string][]model.PlaceInsight{
			"restaurant,cafe": {{Place: "places/ChIJ1"}},
		},
	}
	resolver := &fakeResolver{details: map[string]model.PlaceDetail{
		"places/ChIJ1": closedDetail("ChIJ1", "restaurant"),
	}}
	led := newMemLedger()
	stats := &Stats{}
	r := &Runner{API: api, Details: resolver, Ledger: led, Logger: discard(), Stats: stats}

	p := testParams("Chattanooga_Raw")
	p.WriteEnabled = false
	n, err := r.RunCity(context.Background(), p)
	if err != nil {
		t.Fatalf("RunCity() error = %v", err)
	}
	if n != 0 {
		t.Errorf("RunCity() = %d, want 0 with writes disabled", n)
	}
	if len(led.ensured) != 0 || len(led.appended) != 0 {
		t.Error("ledger was touched despite writes being disabled")
	}
	if got := stats.RowsPrepared.Load(); got != 1 {
		t.Errorf("RowsPrepared = %d, want 1", got)
	}
}

func TestRunCityCountModeProbesAllStatuses(t *testing.T) {
	api := &fakeAPI{counts: map[string]int{"restaurant,cafe": 7}}
	led := newMemLedger()
	r := &Runner{API: api, Details: &fakeResolver{}, Ledger: led, Logger: discard()}

	p := testParams("Chattanooga_Raw")
	p.Mode = model.ModeCount
	n, err := r.RunCity(context.Background(), p)
	if err != nil {
		t.Fatalf("RunCity() error = %v", err)
	}
	if n != 0 {
		t.Errorf("RunCity() = %d, count mode should never append", n)
	}

	if len(api.ops) != 3 {
		t.Fatalf("made %d API calls, want 3 status probes", len(api.ops))
	}
	wantStatuses := []string{
		model.StatusPermanentlyClosed,
		model.StatusTemporarilyClosed,
		model.StatusOperational,
	}
	for i, op := range api.ops {
		if op.kind != "count" {
			t.Errorf("op %d kind = %q, count mode must never fetch places", i, op.kind)
		}
		if len(op.statuses) != 1 || op.statuses[0] != wantStatuses[i] {
			t.Errorf("op %d statuses = %v, want [%s]", i, op.statuses, wantStatuses[i])
		}
		if subsetKey(op.cats) != "restaurant,cafe" {
			t.Errorf("op %d categories = %v, want the full list", i, op.cats)
		}
	}
	if len(led.ensured) != 0 || len(led.appended) != 0 {
		t.Error("count mode touched the ledger")
	}
}

func TestRunCityFetchErrorIsNotFatal(t *testing.T) {
	api := &fakeAPI{countErrs: map[string]error{"restaurant,cafe": errors.New("quota")}}
	stats := &Stats{}
	r := &Runner{API: api, Details: &fakeResolver{}, Ledger: newMemLedger(), Logger: discard(), Stats: stats}

	n, err := r.RunCity(context.Background(), testParams("Chattanooga_Raw"))
	if err != nil {
		t.Fatalf("RunCity() error = %v, upstream fetch failures should be absorbed", err)
	}
	if n != 0 {
		t.Errorf("RunCity() = %d, want 0", n)
	}
	if got := stats.Errors.Load(); got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestRunAllSequentialAndNotifiesOnce(t *testing.T) {
	api := &fakeAPI{
		counts: map[string]int{"restaurant,cafe": 1},
		places: map[string][]model.PlaceInsight{
			"restaurant,cafe": {{Place: "places/ChIJ1"}},
		},
	}
	resolver := &fakeResolver{details: map[string]model.PlaceDetail{
		"places/ChIJ1": closedDetail("ChIJ1", "restaurant"),
	}}
	notifier := &fakeNotifier{}
	r := &Runner{
		API:      api,
		Details:  resolver,
		Ledger:   newMemLedger(),
		Notifier: notifier,
		Logger:   discard(),
	}

	chatt := testParams("Chattanooga_Raw")
	medellin := testParams("Medellin_Raw")
	medellin.City = "Medellin"

	counts, err := r.RunAll(context.Background(), []model.ScanParams{chatt, medellin})
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if counts["Chattanooga"] != 1 || counts["Medellin"] != 1 {
		t.Errorf("counts = %v, want 1 per city", counts)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier fired %d times, want exactly once", notifier.calls)
	}
	if notifier.got["Medellin"] != 1 {
		t.Errorf("notifier saw %v", notifier.got)
	}
}

func TestRunAllNotifierFailureIsAbsorbed(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("sendgrid down")}
	api := &fakeAPI{counts: map[string]int{"restaurant,cafe": 0}}
	r := &Runner{API: api, Details: &fakeResolver{}, Ledger: newMemLedger(), Notifier: notifier, Logger: discard()}

	if _, err := r.RunAll(context.Background(), []model.ScanParams{testParams("Chattanooga_Raw")}); err != nil {
		t.Fatalf("RunAll() error = %v, notification failure should only be logged", err)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier fired %d times, want 1", notifier.calls)
	}
}

func TestRunAllAbortsOnCityError(t *testing.T) {
	notifier := &fakeNotifier{}
	r := &Runner{API: &fakeAPI{}, Details: &fakeResolver{}, Ledger: newMemLedger(), Notifier: notifier, Logger: discard()}

	bad := testParams("Chattanooga_View") // fails tab validation
	good := testParams("Medellin_Raw")
	_, err := r.RunAll(context.Background(), []model.ScanParams{bad, good})
	if err == nil {
		t.Fatal("RunAll() expected error from failing city")
	}
	if notifier.calls != 0 {
		t.Errorf("notifier fired %d times after an aborted pass, want 0", notifier.calls)
	}
}

func TestResolveDetailsHonorsOverallLimit(t *testing.T) {
	details := make(map[string]model.PlaceDetail)
	var found []model.PlaceInsight
	for _, id := range []string{"a", "b", "c", "d"} {
		details["places/"+id] = closedDetail(id, "restaurant")
		found = append(found, model.PlaceInsight{Place: "places/" + id})
	}
	r := &Runner{Details: &fakeResolver{details: details}, Logger: discard()}

	p := testParams("Chattanooga_Raw")
	p.OverallLimit = 2
	got := r.resolveDetails(context.Background(), found, p)
	if len(got) != 2 {
		t.Errorf("resolveDetails() = %d details, want the limit 2", len(got))
	}
}
