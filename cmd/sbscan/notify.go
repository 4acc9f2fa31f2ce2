package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shawnBuilds/suspended-business-scanner/internal/config"
	"github.com/shawnBuilds/suspended-business-scanner/internal/logging"
	"github.com/shawnBuilds/suspended-business-scanner/internal/notify"
)

// mailerOptions resolves email settings with config taking precedence over
// the .env values, and template overrides on top.
func mailerOptions(cfg *config.Config, secrets config.Secrets) (notify.Options, error) {
	to := cfg.Notify.To
	if len(to) == 0 {
		to = secrets.ToEmails
	}
	link := cfg.Notify.SheetLink
	if link == "" {
		link = secrets.SheetURL()
	}

	opts := notify.Options{
		APIKey:    secrets.SendGridAPIKey,
		FromEmail: secrets.FromEmail,
		To:        to,
		Cities:    cfg.CityOrder(),
		SheetLink: link,
	}

	tmpl, err := notify.LoadTemplate(cfg.Notify.TemplatesPath)
	if err != nil {
		return notify.Options{}, err
	}
	if tmpl.Email.Subject != "" {
		opts.Subject = tmpl.Email.Subject
	}
	if tmpl.Email.FromName != "" {
		opts.FromName = tmpl.Email.FromName
	}
	return opts, nil
}

// runNotifyTest sends a zero-count summary so the SendGrid wiring can be
// checked without running a scan.
func runNotifyTest(args []string) error {
	var configPath, envPath, to, link string

	fs := flag.NewFlagSet("notify-test", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to JSON config file (default: built-in)")
	fs.StringVar(&envPath, "env", ".env", "Path to .env credentials file")
	fs.StringVar(&to, "to", "", "Comma-separated recipient override")
	fs.StringVar(&link, "link", "", "Sheet link override")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sbscan notify-test [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  sbscan notify-test\n")
		fmt.Fprintf(os.Stderr, "  sbscan notify-test -to me@example.com\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets(envPath)
	if err != nil {
		return err
	}
	if link != "" {
		cfg.Notify.SheetLink = link
	}

	opts, err := mailerOptions(cfg, secrets)
	if err != nil {
		return err
	}
	if to != "" {
		opts.To = splitList(to)
	}

	mailer, err := notify.NewMailer(opts, logging.Discard())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Zero counts per city exercises the full body template.
	counts := make(map[string]int, len(opts.Cities))
	for _, c := range opts.Cities {
		counts[c] = 0
	}
	if err := mailer.Send(ctx, counts); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Test email sent to %s\n", strings.Join(opts.To, ", "))
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
