package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

// OAuth scopes per service.
var (
	SheetsScopes = []string{
		"https://www.googleapis.com/auth/spreadsheets",
		"https://www.googleapis.com/auth/drive.readonly",
	}
	InsightsScopes = []string{
		"https://www.googleapis.com/auth/cloud-platform",
	}
)

const defaultTokenURL = "https://oauth2.googleapis.com/token"

// ServiceAccount holds the Google service account credential fields, one
// env var each rather than a key file on disk.
type ServiceAccount struct {
	Type                string
	ProjectID           string
	PrivateKeyID        string
	PrivateKey          string
	ClientEmail         string
	ClientID            string
	AuthURI             string
	TokenURI            string
	AuthProviderCertURL string
	ClientCertURL       string
	UniverseDomain      string
}

// Validate reports every missing required field at once so a half-filled
// .env fails with one actionable message.
func (sa ServiceAccount) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"PROJECT_ID", sa.ProjectID},
		{"PRIVATE_KEY_ID", sa.PrivateKeyID},
		{"PRIVATE_KEY", sa.PrivateKey},
		{"CLIENT_EMAIL", sa.ClientEmail},
		{"CLIENT_ID", sa.ClientID},
		{"AUTH_URI", sa.AuthURI},
		{"TOKEN_URI", sa.TokenURI},
		{"AUTH_PROVIDER_X509_CERT_URL", sa.AuthProviderCertURL},
		{"CLIENT_X509_CERT_URL", sa.ClientCertURL},
	}
	var missing []string
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing service account fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// TokenSource builds a service-account token source for the given scopes.
func (sa ServiceAccount) TokenSource(ctx context.Context, scopes ...string) (oauth2.TokenSource, error) {
	if err := sa.Validate(); err != nil {
		return nil, err
	}
	tokenURL := sa.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	conf := &jwt.Config{
		Email:        sa.ClientEmail,
		PrivateKey:   []byte(sa.PrivateKey),
		PrivateKeyID: sa.PrivateKeyID,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return conf.TokenSource(ctx), nil
}

// Secrets holds everything credential-shaped: the service account, API
// keys, spreadsheet identity and email settings.
type Secrets struct {
	ServiceAccount ServiceAccount

	PlacesAPIKey   string
	SpreadsheetID  string
	RawTabOverride string

	SendGridAPIKey string
	FromEmail      string
	ToEmails       []string
	SheetLink      string
}

// SheetURL resolves the link embedded in the summary email: the explicit
// SHEET_LINK when set, otherwise one derived from the spreadsheet id.
func (s Secrets) SheetURL() string {
	if s.SheetLink != "" {
		return s.SheetLink
	}
	if s.SpreadsheetID != "" {
		return "https://docs.google.com/spreadsheets/d/" + s.SpreadsheetID
	}
	return ""
}

// LoadSecrets reads credentials from the .env file at path, falling back
// to the process environment for any key the file does not set. A missing
// file is fine; the environment alone may carry everything.
func LoadSecrets(path string) (Secrets, error) {
	fileVals := map[string]string{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			fileVals = parseEnvFile(string(data))
		} else if !os.IsNotExist(err) {
			return Secrets{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	get := func(key string) string {
		if v, ok := fileVals[key]; ok {
			return v
		}
		return os.Getenv(key)
	}
	getDefault := func(key, def string) string {
		if v := get(key); v != "" {
			return v
		}
		return def
	}

	return Secrets{
		ServiceAccount: ServiceAccount{
			Type:                getDefault("TYPE", "service_account"),
			ProjectID:           get("PROJECT_ID"),
			PrivateKeyID:        get("PRIVATE_KEY_ID"),
			PrivateKey:          strings.ReplaceAll(get("PRIVATE_KEY"), `\n`, "\n"),
			ClientEmail:         get("CLIENT_EMAIL"),
			ClientID:            get("CLIENT_ID"),
			AuthURI:             get("AUTH_URI"),
			TokenURI:            get("TOKEN_URI"),
			AuthProviderCertURL: get("AUTH_PROVIDER_X509_CERT_URL"),
			ClientCertURL:       get("CLIENT_X509_CERT_URL"),
			UniverseDomain:      getDefault("UNIVERSE_DOMAIN", "googleapis.com"),
		},
		PlacesAPIKey:   get("PLACES_API_KEY"),
		SpreadsheetID:  get("SPREADSHEET_ID"),
		RawTabOverride: get("RAW_TAB"),
		SendGridAPIKey: get("SENDGRID_API_KEY"),
		FromEmail:      get("FROM_EMAIL"),
		ToEmails:       splitEmails(get("TO_EMAILS")),
		SheetLink:      get("SHEET_LINK"),
	}, nil
}

// parseEnvFile reads KEY=value lines. Blank lines and # comments are
// skipped, a leading "export " is tolerated, and values may be wrapped in
// matching single or double quotes.
func parseEnvFile(content string) map[string]string {
	vals := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		vals[key] = unquote(strings.TrimSpace(value))
	}
	return vals
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func splitEmails(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
