package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

// SQLiteLedger is a local ledger backend for offline runs and tests.
// Rows land in one table keyed by (tab, place_id), so the dedupe contract
// matches the sheets backend: an identity appears once per tab.
type SQLiteLedger struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens or creates the ledger database at path.
func OpenSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteLedger{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS places (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tab TEXT NOT NULL,
		place_id TEXT NOT NULL,
		name TEXT,
		business_status TEXT,
		business_address TEXT,
		lat REAL,
		lng REAL,
		types TEXT,
		rating REAL,
		user_ratings_total INTEGER,
		keyword TEXT,
		grid_lat TEXT,
		grid_lng TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tab, place_id)
	);
	CREATE INDEX IF NOT EXISTS idx_places_tab ON places(tab);
	CREATE INDEX IF NOT EXISTS idx_places_status ON places(business_status);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// EnsureTab validates the tab name. The schema is shared across tabs, so
// there is nothing to create per tab.
func (l *SQLiteLedger) EnsureTab(ctx context.Context, tab string, headers []string) error {
	return ValidateRawTab(tab)
}

// ReadIdentityColumn returns the stored place ids for one tab in insert
// order. No header cell; the table schema carries the column names.
func (l *SQLiteLedger) ReadIdentityColumn(ctx context.Context, tab string) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT place_id FROM places WHERE tab = ? ORDER BY id", tab)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendRows inserts the batch in one transaction. Identities already
// present in the tab are ignored rather than erroring, mirroring the
// append-only sheets contract.
func (l *SQLiteLedger) AppendRows(ctx context.Context, tab string, rows []model.Row) error {
	if err := ValidateRawTab(tab); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO places
		(tab, place_id, name, business_status, business_address, lat, lng,
		 types, rating, user_ratings_total, keyword, grid_lat, grid_lng)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			tab, r.PlaceID, r.Name, r.BusinessStatus, r.Address,
			r.Lat, r.Lng, r.Types, r.Rating, r.UserRatingCount,
			r.Keyword, r.GridLat, r.GridLng,
		); err != nil {
			return fmt.Errorf("inserting row %q: %w", r.PlaceID, err)
		}
	}
	return tx.Commit()
}

// Rows returns stored rows, all tabs when tab is empty, for exports.
func (l *SQLiteLedger) Rows(ctx context.Context, tab string) ([]model.Row, error) {
	q := `SELECT place_id, name, business_status, business_address, lat, lng,
		types, rating, user_ratings_total, keyword, grid_lat, grid_lng
		FROM places`
	args := []any{}
	if tab != "" {
		q += " WHERE tab = ?"
		args = append(args, tab)
	}
	q += " ORDER BY tab, id"

	rs, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rs.Close()

	var out []model.Row
	for rs.Next() {
		var r model.Row
		if err := rs.Scan(&r.PlaceID, &r.Name, &r.BusinessStatus, &r.Address,
			&r.Lat, &r.Lng, &r.Types, &r.Rating, &r.UserRatingCount,
			&r.Keyword, &r.GridLat, &r.GridLng); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

// Tabs lists the distinct tabs present in the ledger.
func (l *SQLiteLedger) Tabs(ctx context.Context) ([]string, error) {
	rs, err := l.db.QueryContext(ctx, "SELECT DISTINCT tab FROM places ORDER BY tab")
	if err != nil {
		return nil, fmt.Errorf("querying tabs: %w", err)
	}
	defer rs.Close()

	var tabs []string
	for rs.Next() {
		var t string
		if err := rs.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning tab: %w", err)
		}
		tabs = append(tabs, t)
	}
	return tabs, rs.Err()
}
