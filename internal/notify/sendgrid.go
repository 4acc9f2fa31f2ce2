// Package notify sends the post-run summary email through SendGrid.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const defaultSubject = "New suspended businesses this week"

// Options configure the mailer. APIKey, FromEmail and at least one
// recipient are required; everything else has a default.
type Options struct {
	APIKey    string
	FromEmail string
	FromName  string
	To        []string
	Subject   string

	// Cities fixes the order of the per-city lines in the body.
	Cities []string

	// SheetLink is embedded in the body so readers can jump straight to
	// the ledger.
	SheetLink string
}

// Mailer delivers the per-city summary. It implements the runner's
// Notifier interface.
type Mailer struct {
	opts     Options
	endpoint string
	client   *http.Client
	logger   *log.Logger
}

// NewMailer validates the options and builds a mailer.
func NewMailer(opts Options, logger *log.Logger) (*Mailer, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if opts.FromEmail == "" {
		return nil, fmt.Errorf("sender email is required")
	}
	if len(opts.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if opts.Subject == "" {
		opts.Subject = defaultSubject
	}
	return &Mailer{
		opts:     opts,
		endpoint: "https://api.sendgrid.com/v3/mail/send",
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}, nil
}

// SendGrid mail/send wire shapes.
type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To      []address `json:"to"`
	Subject string    `json:"subject"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers one summary email covering every configured city. Cities
// missing from counts report zero, so "no new closures" still goes out.
func (m *Mailer) Send(ctx context.Context, counts map[string]int) error {
	payload := sendRequest{
		Personalizations: []personalization{{
			To:      toAddresses(m.opts.To),
			Subject: m.opts.Subject,
		}},
		From:    address{Email: m.opts.FromEmail, Name: m.opts.FromName},
		Content: []content{{Type: "text/plain", Value: m.buildBody(counts)}},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling sendgrid: %w", err)
	}
	defer resp.Body.Close()

	// SendGrid answers 202 on acceptance; tolerate a plain 200 too.
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, body)
	}

	m.logger.Info("summary email sent", "recipients", len(m.opts.To))
	return nil
}

func (m *Mailer) buildBody(counts map[string]int) string {
	var b strings.Builder
	b.WriteString("Hey team,\n\nHere's how many new businesses we've found in each city:\n\n")
	for _, city := range m.opts.Cities {
		fmt.Fprintf(&b, "- %d in %s\n", counts[city], city)
	}
	if m.opts.SheetLink != "" {
		fmt.Fprintf(&b, "\nCheck out the details in this sheet: %s\n", m.opts.SheetLink)
	}
	return b.String()
}

func toAddresses(emails []string) []address {
	out := make([]address, 0, len(emails))
	for _, e := range emails {
		out = append(out, address{Email: e})
	}
	return out
}

// Template carries optional overrides for the email's subject and sender
// name, loaded from a JSON file shaped {"email": {"subject": ..., "from_name": ...}}.
type Template struct {
	Email struct {
		Subject  string `json:"subject"`
		FromName string `json:"from_name"`
	} `json:"email"`
}

// LoadTemplate reads the template file at path. A missing file means no
// overrides; a present but unparsable file is an error.
func LoadTemplate(path string) (Template, error) {
	var t Template
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, fmt.Errorf("reading template %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parsing template %s: %w", path, err)
	}
	return t, nil
}
