package scan

import (
	"crypto/md5"
	"encoding/binary"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

var testCategories = []string{
	"restaurant", "cafe", "bakery", "bar", "coffee_shop",
	"meal_takeaway", "grocery_store", "pharmacy", "gym", "lodging",
	"book_store", "gas_station",
}

func discard() *log.Logger {
	return log.New(io.Discard)
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSelectOrderDisabledPassesThrough(t *testing.T) {
	p := model.ShuffleParams{Enabled: false}
	got := SelectOrder(testCategories, p, "Chattanooga", time.Now(), discard())
	if !sameOrder(got, testCategories) {
		t.Errorf("SelectOrder() = %v, want input order", got)
	}

	// The result is a copy, not an alias.
	got[0] = "mutated"
	if testCategories[0] == "mutated" {
		t.Error("SelectOrder() aliased its input")
	}
}

func TestSelectOrderNeverMutatesInput(t *testing.T) {
	original := make([]string, len(testCategories))
	copy(original, testCategories)

	p := model.ShuffleParams{Enabled: true, SeedMode: "daily"}
	SelectOrder(testCategories, p, "Chattanooga", time.Now(), discard())

	if !sameOrder(testCategories, original) {
		t.Errorf("input mutated: %v", testCategories)
	}
}

func TestSelectOrderIsAPermutation(t *testing.T) {
	p := model.ShuffleParams{Enabled: true, SeedMode: "random"}
	got := SelectOrder(testCategories, p, "Chattanooga", time.Now(), discard())

	wantSorted := make([]string, len(testCategories))
	copy(wantSorted, testCategories)
	sort.Strings(wantSorted)
	gotSorted := make([]string, len(got))
	copy(gotSorted, got)
	sort.Strings(gotSorted)

	if !sameOrder(gotSorted, wantSorted) {
		t.Errorf("SelectOrder() = %v is not a permutation of the input", got)
	}
}

func TestSelectOrderDailyIsStableWithinOneDay(t *testing.T) {
	p := model.ShuffleParams{Enabled: true, SeedMode: "daily"}
	day := time.Date(2025, 9, 15, 8, 0, 0, 0, time.UTC)
	later := time.Date(2025, 9, 15, 23, 30, 0, 0, time.UTC)

	first := SelectOrder(testCategories, p, "Chattanooga", day, discard())
	second := SelectOrder(testCategories, p, "Chattanooga", later, discard())
	if !sameOrder(first, second) {
		t.Errorf("same city and day gave different orders:\n%v\n%v", first, second)
	}
}

func TestSeedForDailyDerivation(t *testing.T) {
	day := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	p := model.ShuffleParams{SeedMode: "daily"}

	sum := md5.Sum([]byte("Chattanooga|2025-09-15"))
	want := binary.BigEndian.Uint64(sum[:8])
	if got := seedFor(p, "Chattanooga", day); got != want {
		t.Errorf("seedFor(daily) = %d, want %d", got, want)
	}

	// Different city or different day means a different seed.
	if seedFor(p, "Medellin", day) == want {
		t.Error("different city should derive a different seed")
	}
	nextDay := day.Add(24 * time.Hour)
	if seedFor(p, "Chattanooga", nextDay) == want {
		t.Error("different day should derive a different seed")
	}
}

func TestSeedForDailyUsesUTCDate(t *testing.T) {
	p := model.ShuffleParams{SeedMode: "daily"}
	// 2025-09-15 23:00 in UTC-5 is already 2025-09-16 in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2025, 9, 15, 23, 0, 0, 0, loc)

	sum := md5.Sum([]byte("Chattanooga|2025-09-16"))
	want := binary.BigEndian.Uint64(sum[:8])
	if got := seedFor(p, "Chattanooga", local); got != want {
		t.Errorf("seedFor() = %d, want UTC-date-derived %d", got, want)
	}
}

func TestSelectOrderFixedSeedIsReproducible(t *testing.T) {
	p := model.ShuffleParams{Enabled: true, SeedMode: "fixed", FixedSeed: 1234}
	first := SelectOrder(testCategories, p, "Chattanooga", time.Now(), discard())
	second := SelectOrder(testCategories, p, "Medellin", time.Now(), discard())
	if !sameOrder(first, second) {
		t.Errorf("fixed seed should ignore city and clock:\n%v\n%v", first, second)
	}

	if got := seedFor(p, "anything", time.Now()); got != 1234 {
		t.Errorf("seedFor(fixed) = %d, want 1234", got)
	}
}

func TestSelectOrderEmptyInput(t *testing.T) {
	p := model.ShuffleParams{Enabled: true, SeedMode: "daily"}
	if got := SelectOrder(nil, p, "Chattanooga", time.Now(), discard()); len(got) != 0 {
		t.Errorf("SelectOrder(nil) = %v, want empty", got)
	}
}
