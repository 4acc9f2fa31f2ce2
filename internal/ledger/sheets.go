package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/shawnBuilds/suspended-business-scanner/internal/model"
)

const maxBodyBytes = 10 << 20

// SheetsLedger stores rows in a Google Sheets spreadsheet through the
// Sheets v4 REST API. The HTTP client carries OAuth credentials in its
// transport.
type SheetsLedger struct {
	spreadsheetID string
	baseURL       string
	client        *http.Client
	logger        *log.Logger
}

// NewSheetsLedger builds a ledger over one spreadsheet.
func NewSheetsLedger(hc *http.Client, spreadsheetID string, logger *log.Logger) *SheetsLedger {
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		hc.Timeout = 60 * time.Second
	}
	return &SheetsLedger{
		spreadsheetID: spreadsheetID,
		baseURL:       "https://sheets.googleapis.com/v4/spreadsheets",
		client:        hc,
		logger:        logger,
	}
}

// EnsureTab creates the tab if missing and writes the header row when the
// first row is blank.
func (l *SheetsLedger) EnsureTab(ctx context.Context, tab string, headers []string) error {
	if err := ValidateRawTab(tab); err != nil {
		return err
	}

	exists, err := l.tabExists(ctx, tab)
	if err != nil {
		return fmt.Errorf("listing tabs: %w", err)
	}
	if !exists {
		if err := l.addTab(ctx, tab, len(headers)); err != nil {
			return fmt.Errorf("creating tab %q: %w", tab, err)
		}
		l.logger.Info("created ledger tab", "tab", tab)
	}

	firstRow, err := l.readValues(ctx, rangeName(tab, "1:1"))
	if err != nil {
		return fmt.Errorf("reading header row: %w", err)
	}
	if len(firstRow) == 0 || len(firstRow[0]) == 0 || firstRow[0][0] == "" {
		body := map[string]any{"values": [][]string{headers}}
		u := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW",
			l.baseURL, l.spreadsheetID, url.PathEscape(rangeName(tab, "1:1")))
		if err := l.doJSON(ctx, http.MethodPut, u, body, nil); err != nil {
			return fmt.Errorf("writing header row: %w", err)
		}
		l.logger.Info("wrote header row", "tab", tab)
	}
	return nil
}

// ReadIdentityColumn returns column A top to bottom, header included.
func (l *SheetsLedger) ReadIdentityColumn(ctx context.Context, tab string) ([]string, error) {
	rows, err := l.readValues(ctx, rangeName(tab, "A:A"))
	if err != nil {
		return nil, fmt.Errorf("reading column A of %q: %w", tab, err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, row[0])
	}
	return out, nil
}

// AppendRows appends the rows below existing content with RAW input, no
// cell parsing on the sheet side.
func (l *SheetsLedger) AppendRows(ctx context.Context, tab string, rows []model.Row) error {
	if err := ValidateRawTab(tab); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	values := make([][]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, r.Values())
	}
	body := map[string]any{"values": values}
	u := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW",
		l.baseURL, l.spreadsheetID, url.PathEscape(rangeName(tab, "A1")))
	if err := l.doJSON(ctx, http.MethodPost, u, body, nil); err != nil {
		return fmt.Errorf("appending to %q: %w", tab, err)
	}
	return nil
}

func (l *SheetsLedger) tabExists(ctx context.Context, tab string) (bool, error) {
	u := fmt.Sprintf("%s/%s?fields=sheets.properties.title", l.baseURL, l.spreadsheetID)
	var resp struct {
		Sheets []struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := l.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return false, err
	}
	for _, s := range resp.Sheets {
		if s.Properties.Title == tab {
			return true, nil
		}
	}
	return false, nil
}

func (l *SheetsLedger) addTab(ctx context.Context, tab string, columns int) error {
	if columns < 10 {
		columns = 10
	}
	body := map[string]any{
		"requests": []any{
			map[string]any{
				"addSheet": map[string]any{
					"properties": map[string]any{
						"title": tab,
						"gridProperties": map[string]any{
							"rowCount":    100,
							"columnCount": columns,
						},
					},
				},
			},
		},
	}
	u := fmt.Sprintf("%s/%s:batchUpdate", l.baseURL, l.spreadsheetID)
	return l.doJSON(ctx, http.MethodPost, u, body, nil)
}

func (l *SheetsLedger) readValues(ctx context.Context, rng string) ([][]string, error) {
	u := fmt.Sprintf("%s/%s/values/%s", l.baseURL, l.spreadsheetID, url.PathEscape(rng))
	var resp struct {
		Values [][]string `json:"values"`
	}
	if err := l.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (l *SheetsLedger) doJSON(ctx context.Context, method, u string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling sheets api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sheets api status %d: %s", resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// rangeName builds an A1 range with the tab quoted, since preset tab
// names may contain spaces.
func rangeName(tab, ref string) string {
	return "'" + tab + "'!" + ref
}
