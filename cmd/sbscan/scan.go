package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"github.com/shawnBuilds/suspended-business-scanner/internal/config"
	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/insights"
	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/scan"
	"github.com/shawnBuilds/suspended-business-scanner/internal/ledger"
	"github.com/shawnBuilds/suspended-business-scanner/internal/logging"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
	"github.com/shawnBuilds/suspended-business-scanner/internal/notify"
)

func runScan(args []string) error {
	var (
		configPath string
		envPath    string
		city       string
		allCities  bool
		mode       string
		strategy   string
		radiusM    int
		outputDir  string
		backend    string
		dbPath     string
		sendNotify bool
	)

	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to JSON config file (default: built-in)")
	fs.StringVar(&envPath, "env", ".env", "Path to .env credentials file")
	fs.StringVar(&city, "city", "", "City to scan (default: config city)")
	fs.BoolVar(&allCities, "all", false, "Scan every configured city in order")
	fs.StringVar(&mode, "mode", "", "Scan mode: places or count")
	fs.StringVar(&strategy, "strategy", "", "Fetch strategy: backoff or sweep")
	fs.IntVar(&radiusM, "radius", 0, "Query radius in meters")
	fs.StringVar(&outputDir, "output", "data", "Directory for logs and snapshots")
	fs.StringVar(&backend, "ledger", "", "Ledger backend: sheets or sqlite")
	fs.StringVar(&dbPath, "db", "", "SQLite ledger path (sqlite backend only)")
	fs.BoolVar(&sendNotify, "notify", false, "Send the summary email after an all-cities run")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sbscan scan [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sbscan scan -city Chattanooga\n")
		fmt.Fprintf(os.Stderr, "  sbscan scan -all -notify\n")
		fmt.Fprintf(os.Stderr, "  sbscan scan -city Medellin -mode count -ledger sqlite\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flag overrides on top of the file config
	if mode != "" {
		cfg.Scan.Mode = mode
	}
	if strategy != "" {
		cfg.Scan.Strategy = strategy
	}
	if radiusM > 0 {
		cfg.Region.RadiusM = radiusM
	}
	if backend != "" {
		cfg.Ledger.Backend = backend
	}
	if dbPath != "" {
		cfg.Ledger.DBPath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	secrets, err := config.LoadSecrets(envPath)
	if err != nil {
		return err
	}
	if cfg.Scan.Mode == model.ModePlaces && secrets.PlacesAPIKey == "" {
		return fmt.Errorf("PLACES_API_KEY is required for places mode")
	}
	if cfg.Ledger.Backend == "sheets" && secrets.SpreadsheetID == "" {
		return fmt.Errorf("SPREADSHEET_ID is required for the sheets backend")
	}

	// Setup log file
	logger, logFile, err := logging.New(outputDir, cfg.Logging.Level())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logPath := logFile.Name()

	logger.Info("session start",
		"mode", cfg.Scan.Mode, "strategy", cfg.Scan.Strategy,
		"backend", cfg.Ledger.Backend, "radius_m", cfg.Region.RadiusM)

	fmt.Fprintf(os.Stderr, "Log: %s\n", logPath)

	// Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	// Open the ledger backend
	var store ledger.Ledger
	switch cfg.Ledger.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.Ledger.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("creating db dir: %w", err)
			}
		}
		db, err := ledger.OpenSQLite(cfg.Ledger.DBPath)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer db.Close()
		store = db
	default:
		ts, err := secrets.ServiceAccount.TokenSource(ctx, config.SheetsScopes...)
		if err != nil {
			return fmt.Errorf("sheets credentials: %w", err)
		}
		store = ledger.NewSheetsLedger(oauth2.NewClient(ctx, ts), secrets.SpreadsheetID, logger)
	}

	// Insights API client over the service account
	ts, err := secrets.ServiceAccount.TokenSource(ctx, config.InsightsScopes...)
	if err != nil {
		return fmt.Errorf("insights credentials: %w", err)
	}
	api := insights.NewClient(oauth2.NewClient(ctx, ts), logger, insights.Options{
		LogRequests:     cfg.Logging.RequestBuild || cfg.Logging.RequestSend,
		LogResponseKeys: cfg.Logging.ResponseKeys,
	})

	pause := time.Duration(cfg.Scan.DetailPauseMs) * time.Millisecond
	details := insights.NewDetailsClient(secrets.PlacesAPIKey, pause, logger)

	var notifier scan.Notifier
	if sendNotify || cfg.Notify.Enabled {
		opts, err := mailerOptions(cfg, secrets)
		if err != nil {
			return fmt.Errorf("notify setup: %w", err)
		}
		mailer, err := notify.NewMailer(opts, logger)
		if err != nil {
			return fmt.Errorf("notify setup: %w", err)
		}
		notifier = mailer
	}

	stats := &scan.Stats{}
	runner := &scan.Runner{
		API:         api,
		Details:     details,
		Ledger:      store,
		SnapshotDir: filepath.Join(outputDir, "snapshots"),
		Notifier:    notifier,
		Logger:      logger,
		Stats:       stats,
	}

	if cfg.Scan.Mode == model.ModeCount {
		fmt.Fprintf(os.Stderr, "Count diagnostic: per-status totals land in the log\n")
	}

	startTime := time.Now()
	var appended int
	counts := map[string]int{}
	var cities []string

	if allCities {
		order := cfg.CityOrder()
		params := make([]model.ScanParams, 0, len(order))
		for _, name := range order {
			p, err := cfg.ParamsForCity(name, "")
			if err != nil {
				return err
			}
			params = append(params, p)
		}

		fmt.Fprintf(os.Stderr, "Scanning %d cities: %s\n", len(order), strings.Join(order, ", "))
		counts, err = runner.RunAll(ctx, params)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		for _, n := range counts {
			appended += n
		}
		cities = order
	} else {
		if city == "" {
			city = cfg.City
		}
		p, err := cfg.ParamsForCity(city, secrets.RawTabOverride)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Scanning %s (mode=%s strategy=%s radius=%dm tab=%s)\n",
			city, p.Mode, p.Strategy, p.RadiusM, p.Tab)
		appended, err = runner.RunCity(ctx, p)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		counts[city] = appended
		cities = []string{city}
	}

	duration := time.Since(startTime).Truncate(time.Second)

	logger.Info("session done",
		"probes", stats.Probes.Load(), "fetches", stats.Fetches.Load(),
		"insights", stats.InsightsFound.Load(), "details", stats.DetailsResolved.Load(),
		"appended", appended, "errors", stats.Errors.Load(), "duration", duration)

	// Print final summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Scan Complete\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	if len(cities) == 1 {
		fmt.Fprintf(os.Stderr, "  City:       %s\n", cities[0])
	} else {
		fmt.Fprintf(os.Stderr, "  Cities:     %d\n", len(cities))
	}
	fmt.Fprintf(os.Stderr, "  Mode:       %s (%s)\n", cfg.Scan.Mode, cfg.Scan.Strategy)
	fmt.Fprintf(os.Stderr, "  Probes:     %d\n", stats.Probes.Load())
	fmt.Fprintf(os.Stderr, "  Fetches:    %d\n", stats.Fetches.Load())
	fmt.Fprintf(os.Stderr, "  Insights:   %d\n", stats.InsightsFound.Load())
	fmt.Fprintf(os.Stderr, "  Details:    %d\n", stats.DetailsResolved.Load())
	fmt.Fprintf(os.Stderr, "  Appended:   %d (new)\n", appended)
	if len(cities) > 1 {
		for _, name := range cities {
			fmt.Fprintf(os.Stderr, "    %-10s%d\n", name+":", counts[name])
		}
	}
	fmt.Fprintf(os.Stderr, "  Errors:     %d\n", stats.Errors.Load())
	fmt.Fprintf(os.Stderr, "  Duration:   %s\n", duration)
	fmt.Fprintf(os.Stderr, "  Ledger:     %s\n", cfg.Ledger.Backend)
	fmt.Fprintf(os.Stderr, "  Log:        %s\n", logPath)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")

	return nil
}
