// Package logging builds the run-scoped file logger every command writes to.
// Each invocation gets its own timestamped log so runs never interleave.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// New opens a fresh log file under dir and returns a structured logger
// writing to it. The caller owns closing the file.
func New(dir string, level log.Level) (*log.Logger, *os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	name := fmt.Sprintf("sbscan_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
	return logger, f, nil
}

// Discard returns a logger that drops everything. Handy default for
// components whose callers did not wire a logger.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
