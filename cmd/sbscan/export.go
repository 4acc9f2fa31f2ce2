package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shawnBuilds/suspended-business-scanner/internal/ledger"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
	"github.com/shawnBuilds/suspended-business-scanner/internal/snapshot"
)

func runExport(args []string) error {
	var dbPath, tab, outputPath, format string

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", "", "Path to .db ledger (required)")
	fs.StringVar(&tab, "tab", "", "Only export one tab (default: all)")
	fs.StringVar(&outputPath, "output", "", "Output file path (default: same dir as db)")
	fs.StringVar(&format, "format", "csv", "Export format: csv or geojson")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sbscan export [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sbscan export -db data/sbscan.db\n")
		fmt.Fprintf(os.Stderr, "  sbscan export -db data/sbscan.db -tab Chattanooga_Raw -format geojson\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dbPath == "" {
		return fmt.Errorf("-db is required")
	}
	if format != "csv" && format != "geojson" {
		return fmt.Errorf("unsupported format: %s (want csv or geojson)", format)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database not found: %s", dbPath)
	}

	// Default output path
	if outputPath == "" {
		dir := filepath.Dir(dbPath)
		base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
		outputPath = filepath.Join(dir, base+"."+format)
	}

	store, err := ledger.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	rows, err := store.Rows(ctx, tab)
	if err != nil {
		return fmt.Errorf("loading rows: %w", err)
	}
	if len(rows) == 0 {
		if tab != "" {
			if tabs, err := store.Tabs(ctx); err == nil && len(tabs) > 0 {
				return fmt.Errorf("no rows in tab %q, available tabs: %s", tab, strings.Join(tabs, ", "))
			}
		}
		return fmt.Errorf("no rows found in ledger")
	}

	switch format {
	case "geojson":
		err = exportGeoJSON(outputPath, rows)
	default:
		err = exportCSV(outputPath, rows)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Exported %d rows to %s\n", len(rows), outputPath)
	return nil
}

func exportCSV(path string, rows []model.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write(model.RowHeaders())
	for _, r := range rows {
		w.Write(r.Values())
	}
	w.Flush()
	return w.Error()
}

func exportGeoJSON(path string, rows []model.Row) error {
	data, err := json.MarshalIndent(snapshot.FeatureCollection(rows), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding geojson: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
