// Package monitoring - logging.go configures the global zerolog logger.
package monitoring

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// LoggingConfig mirrors config.MonitoringConfig without importing it.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console, auto
	Output string // stdout, stderr
}

// SetupLogging configures the global logger and returns it.
// "auto" picks the console writer only when the output is a terminal.
func SetupLogging(cfg LoggingConfig) zerolog.Logger {
	out := os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	var w io.Writer = out
	if useConsole(cfg.Format, int(out.Fd())) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "stamp-gateway").Logger()
	return log.Logger
}

func useConsole(format string, fd int) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	default:
		return term.IsTerminal(fd)
	}
}

// ParseLevel maps a config level to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
