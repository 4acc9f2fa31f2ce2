package views

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/oauth2"

	"github.com/shawnBuilds/suspended-business-scanner/internal/config"
	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/insights"
	"github.com/shawnBuilds/suspended-business-scanner/internal/engine/scan"
	"github.com/shawnBuilds/suspended-business-scanner/internal/ledger"
	"github.com/shawnBuilds/suspended-business-scanner/internal/logging"
	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
	"github.com/shawnBuilds/suspended-business-scanner/internal/tui/styles"
)

// sharedState holds data shared between the scan goroutine and the TUI.
// Lives behind a pointer so it survives bubbletea's value copies.
type sharedState struct {
	mu     sync.Mutex
	stats  *scan.Stats
	cancel context.CancelFunc
}

// ProgressModel manages the running-scan view.
type ProgressModel struct {
	msg         StartScanMsg
	progress    progress.Model
	startTime   time.Time
	done        bool
	confirmQuit bool
	err         error
	counts      map[string]int
	logPath     string
	width       int
	height      int
	shared      *sharedState
}

// Messages
type progressTickMsg time.Time

type scanCompleteMsg struct {
	Err     error
	Counts  map[string]int
	LogPath string
}

func NewProgressModel(msg StartScanMsg) ProgressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	return ProgressModel{
		msg:       msg,
		progress:  p,
		startTime: time.Now(),
		shared:    &sharedState{},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startScan(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

// startScan wires the whole run the same way the headless scan command
// does, then drives the runner to completion in the background.
func (m ProgressModel) startScan() tea.Cmd {
	shared := m.shared
	msg := m.msg

	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())

		cfg, err := config.Load("")
		if err != nil {
			cancel()
			return scanCompleteMsg{Err: err}
		}
		if msg.Mode != "" {
			cfg.Scan.Mode = msg.Mode
		}
		if msg.Strategy != "" {
			cfg.Scan.Strategy = msg.Strategy
		}
		if msg.RadiusM != "" {
			if r, err := strconv.Atoi(msg.RadiusM); err == nil && r > 0 {
				cfg.Region.RadiusM = r
			}
		}
		if msg.Backend != "" {
			cfg.Ledger.Backend = msg.Backend
		}
		if err := cfg.Validate(); err != nil {
			cancel()
			return scanCompleteMsg{Err: err}
		}

		envPath := msg.EnvPath
		if envPath == "" {
			envPath = ".env"
		}
		secrets, err := config.LoadSecrets(envPath)
		if err != nil {
			cancel()
			return scanCompleteMsg{Err: err}
		}
		if cfg.Scan.Mode == model.ModePlaces && secrets.PlacesAPIKey == "" {
			cancel()
			return scanCompleteMsg{Err: fmt.Errorf("PLACES_API_KEY is required for places mode")}
		}
		if cfg.Ledger.Backend == "sheets" && secrets.SpreadsheetID == "" {
			cancel()
			return scanCompleteMsg{Err: fmt.Errorf("SPREADSHEET_ID is required for the sheets backend")}
		}

		// Resolve cities before touching the filesystem
		var order []string
		if msg.AllCities {
			order = cfg.CityOrder()
		} else {
			city := msg.City
			if city == "" {
				city = cfg.City
			}
			order = []string{city}
		}
		params := make([]model.ScanParams, 0, len(order))
		for _, name := range order {
			tabOverride := ""
			if !msg.AllCities {
				tabOverride = secrets.RawTabOverride
			}
			p, err := cfg.ParamsForCity(name, tabOverride)
			if err != nil {
				cancel()
				return scanCompleteMsg{Err: err}
			}
			params = append(params, p)
		}

		outDir := msg.Output
		if outDir == "" {
			outDir = "data"
		}
		logger, logFile, err := logging.New(outDir, cfg.Logging.Level())
		if err != nil {
			cancel()
			return scanCompleteMsg{Err: err}
		}
		logPath := logFile.Name()

		// Open the ledger backend
		var store ledger.Ledger
		var closeStore func() error
		switch cfg.Ledger.Backend {
		case "sqlite":
			if dir := filepath.Dir(cfg.Ledger.DBPath); dir != "." {
				os.MkdirAll(dir, 0755)
			}
			db, err := ledger.OpenSQLite(cfg.Ledger.DBPath)
			if err != nil {
				logFile.Close()
				cancel()
				return scanCompleteMsg{Err: err, LogPath: logPath}
			}
			store = db
			closeStore = db.Close
		default:
			ts, err := secrets.ServiceAccount.TokenSource(ctx, config.SheetsScopes...)
			if err != nil {
				logFile.Close()
				cancel()
				return scanCompleteMsg{Err: err, LogPath: logPath}
			}
			store = ledger.NewSheetsLedger(oauth2.NewClient(ctx, ts), secrets.SpreadsheetID, logger)
		}

		ts, err := secrets.ServiceAccount.TokenSource(ctx, config.InsightsScopes...)
		if err != nil {
			logFile.Close()
			if closeStore != nil {
				closeStore()
			}
			cancel()
			return scanCompleteMsg{Err: err, LogPath: logPath}
		}
		api := insights.NewClient(oauth2.NewClient(ctx, ts), logger, insights.Options{
			LogResponseKeys: cfg.Logging.ResponseKeys,
		})

		pause := time.Duration(cfg.Scan.DetailPauseMs) * time.Millisecond
		details := insights.NewDetailsClient(secrets.PlacesAPIKey, pause, logger)

		stats := &scan.Stats{}

		// Store into shared state (survives bubbletea value copies)
		shared.mu.Lock()
		shared.stats = stats
		shared.cancel = cancel
		shared.mu.Unlock()

		runner := &scan.Runner{
			API:         api,
			Details:     details,
			Ledger:      store,
			SnapshotDir: filepath.Join(outDir, "snapshots"),
			Logger:      logger,
			Stats:       stats,
		}

		counts, runErr := runner.RunAll(ctx, params)

		logFile.Close()
		if closeStore != nil {
			closeStore()
		}

		return scanCompleteMsg{Err: runErr, Counts: counts, LogPath: logPath}
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if cancel := m.shared.getCancel(); cancel != nil {
				cancel()
			}
			return m, tea.Quit
		case "q":
			if m.done {
				return m, tea.Quit
			}
		case "esc":
			if m.done {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			if m.confirmQuit {
				// Second esc: cancel and go home
				if cancel := m.shared.getCancel(); cancel != nil {
					cancel()
				}
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			// First esc: show confirmation
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done {
				return m, func() tea.Msg { return NavigateToHome{} }
			}
			if m.confirmQuit {
				m.confirmQuit = false
				return m, nil
			}
		}
		// Any other key cancels the confirmation
		if m.confirmQuit {
			m.confirmQuit = false
		}
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case scanCompleteMsg:
		m.done = true
		m.err = msg.Err
		m.counts = msg.Counts
		m.logPath = msg.LogPath
		return m, nil
	}

	var cmd tea.Cmd
	var pModel tea.Model
	pModel, cmd = m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(m.title()))
	b.WriteString("\n\n")

	// Stats
	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(30).
		Render(m.renderStats())
	b.WriteString(statsBox)
	b.WriteString("\n\n")

	// Progress bar tracks cities finished
	stats := m.shared.getStats()
	var pct float64
	if stats != nil {
		if total := stats.CitiesTotal.Load(); total > 0 {
			pct = float64(stats.CitiesDone.Load()) / float64(total)
		}
	}
	b.WriteString(m.progress.ViewAs(pct))
	b.WriteString("\n\n")

	// Status
	if m.done {
		if m.err != nil && !errors.Is(m.err, context.Canceled) {
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			total := 0
			for _, n := range m.counts {
				total += n
			}
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
				Render(fmt.Sprintf("Complete! %d new rows appended", total)))
			if len(m.counts) > 1 {
				names := make([]string, 0, len(m.counts))
				for name := range m.counts {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					b.WriteString("\n")
					b.WriteString(lipgloss.NewStyle().Foreground(styles.Text).
						Render(fmt.Sprintf("  %s: %d", name, m.counts[name])))
				}
			}
		}
		if m.logPath != "" {
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
				Render(fmt.Sprintf("Log: %s", m.logPath)))
		}
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("esc back • q quit"))
	} else if m.confirmQuit {
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the scan and go back"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	} else {
		b.WriteString(styles.StatusBar.Render("esc cancel • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) title() string {
	switch {
	case m.msg.AllCities:
		return "Scanning all cities"
	case m.msg.Mode == model.ModeCount:
		return "Count diagnostic"
	case m.msg.City != "":
		return "Scanning " + m.msg.City
	default:
		return "Scanning"
	}
}

func (m ProgressModel) renderStats() string {
	var sb strings.Builder
	elapsed := time.Since(m.startTime).Truncate(time.Second)

	var citiesDone, citiesTotal int64
	var probes, fetches, insightsFound, detailsResolved, appended, errors int64

	stats := m.shared.getStats()
	if stats != nil {
		citiesDone = stats.CitiesDone.Load()
		citiesTotal = stats.CitiesTotal.Load()
		probes = stats.Probes.Load()
		fetches = stats.Fetches.Load()
		insightsFound = stats.InsightsFound.Load()
		detailsResolved = stats.DetailsResolved.Load()
		appended = stats.RowsAppended.Load()
		errors = stats.Errors.Load()
	}

	statLabel := lipgloss.NewStyle().Foreground(styles.Muted).Width(12)
	statVal := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)

	row := func(label string, value string) {
		sb.WriteString(statLabel.Render(label))
		sb.WriteString(statVal.Render(value))
		sb.WriteString("\n")
	}

	row("Cities:", fmt.Sprintf("%d/%d", citiesDone, citiesTotal))
	row("Probes:", fmt.Sprintf("%d", probes))
	row("Fetches:", fmt.Sprintf("%d", fetches))
	row("Insights:", fmt.Sprintf("%d", insightsFound))
	row("Details:", fmt.Sprintf("%d", detailsResolved))
	row("Appended:", fmt.Sprintf("%d", appended))

	errStyle := statVal
	if errors > 0 {
		errStyle = lipgloss.NewStyle().Foreground(styles.Error).Bold(true)
	}
	sb.WriteString(statLabel.Render("Errors:"))
	sb.WriteString(errStyle.Render(fmt.Sprintf("%d", errors)))
	sb.WriteString("\n")

	row("Elapsed:", elapsed.String())

	return sb.String()
}

func (s *sharedState) getCancel() context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel
}

func (s *sharedState) getStats() *scan.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
