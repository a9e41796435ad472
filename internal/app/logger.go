package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/log"
)

// newLogger creates a slog.Logger backed by a charm log handler. It does not
// set the global logger, allowing for isolated logger instances.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level, err := log.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		level = log.InfoLevel
	}

	formatter := log.TextFormatter
	if strings.EqualFold(formatStr, "json") {
		formatter = log.JSONFormatter
	}

	handler := log.NewWithOptions(outW, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
	})
	return slog.New(handler)
}
