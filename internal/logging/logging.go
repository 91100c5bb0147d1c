// Package logging owns the process-wide structured logger.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const (
	SourceApp       = "app"
	SourceAPI       = "api"
	SourceDashboard = "dashboard"
	SourceActivity  = "activity"
	SourceSim       = "sim"
	SourceSimServer = "simserver"
	SourceJournal   = "journal"
	SourceMCP       = "mcp"
	SourceTUI       = "tui"
)

var (
	initOnce   sync.Once
	baseLogger *log.Logger
)

// Options controls where the base logger writes and at which level.
type Options struct {
	Output io.Writer
	Level  log.Level
}

// Configure installs the base logger. Only the first call (or the first
// Logger call, whichever comes first) takes effect, so commands that need a
// different sink must call it before anything logs.
func Configure(opts Options) {
	initOnce.Do(func() {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		baseLogger = log.NewWithOptions(out, log.Options{
			TimeFunction:    log.NowUTC,
			TimeFormat:      time.RFC3339Nano,
			Level:           opts.Level,
			ReportTimestamp: true,
			Formatter:       log.LogfmtFormatter,
		})

		stdLogger := baseLogger.With("source", SourceApp).StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel})

		stdlog.SetFlags(0)
		stdlog.SetOutput(stdLogger.Writer())
	})
}

// Init configures the shared logger with defaults (stderr, info).
func Init() {
	Configure(Options{Level: log.InfoLevel})
}

// Logger returns a structured logger tagged with source.
func Logger(source string) *log.Logger {
	Init()

	return baseLogger.With("source", source)
}

// ParseLevel maps a flag value onto a log level, defaulting to info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
