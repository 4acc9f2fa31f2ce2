package scan

import (
	"strings"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// DedupeNew filters rows down to the ones worth appending: identity
// non-empty, absent from the ledger, and not a repeat within this batch.
// Input order is preserved. Running the result through again with the
// same baseline yields the same rows, so a retried append never doubles.
func DedupeNew(rows []model.Row, existing map[string]struct{}) []model.Row {
	var unique []model.Row
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		id := r.PlaceID
		if id == "" {
			continue
		}
		if _, ok := existing[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}

// IdentitySet folds a ledger identity column into a set. A first cell
// that case-insensitively reads "place_id" is the header, not data, and
// empty cells are skipped.
func IdentitySet(column []string) map[string]struct{} {
	ids := make(map[string]struct{}, len(column))
	for i, v := range column {
		if i == 0 && strings.EqualFold(strings.TrimSpace(v), "place_id") {
			continue
		}
		if v == "" {
			continue
		}
		ids[v] = struct{}{}
	}
	return ids
}
