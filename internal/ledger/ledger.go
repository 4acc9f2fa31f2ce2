// Package ledger stores scanned rows durably, one tab per city. The
// identity column doubles as the deduplication baseline for future runs.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// Ledger is the append-only row store behind a scan.
type Ledger interface {
	// EnsureTab makes the tab exist with the header row in place. Safe
	// to call repeatedly; existing data is never touched.
	EnsureTab(ctx context.Context, tab string, headers []string) error

	// ReadIdentityColumn returns the first column top to bottom, header
	// included if the backend stores one.
	ReadIdentityColumn(ctx context.Context, tab string) ([]string, error)

	// AppendRows appends rows below existing content as raw values.
	AppendRows(ctx context.Context, tab string, rows []model.Row) error
}

// ValidateRawTab refuses tabs outside the *_Raw namespace. Derived view
// tabs share the spreadsheet, and a scan must never write into one.
func ValidateRawTab(tab string) error {
	if !strings.HasSuffix(tab, "_Raw") {
		return fmt.Errorf("refusing to write to tab %q: target tab must end with _Raw", tab)
	}
	return nil
}
