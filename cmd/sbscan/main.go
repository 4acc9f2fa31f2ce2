package main

import (
	"fmt"
	"os"

	"github.com/shawnBuilds/suspended-business-scanner/internal/tui"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[0] != "" {
		switch os.Args[1] {
		case "scan":
			if err := runScan(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "export":
			if err := runExport(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "notify-test":
			if err := runNotifyTest(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Println("sbscan " + version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	// No subcommand → launch TUI
	if err := tui.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `sbscan - suspended business scanner

Usage:
  sbscan                     Launch interactive TUI
  sbscan scan [flags]        Run headless scan
  sbscan export [flags]      Export a .db ledger to CSV or GeoJSON
  sbscan notify-test [flags] Send a test summary email
  sbscan version             Show version

Run 'sbscan scan --help' or 'sbscan export --help' for flags.
`)
}
