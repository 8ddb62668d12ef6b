// Package pglog provides the engine's ambient logging, a thin wrapper
// around charmbracelet/log so every package in this module logs through
// the same structured logger an embedding application can swap out.
package pglog

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
)

var defaultLogger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "pgstmt",
})

func init() {
	defaultLogger.SetLevel(log.WarnLevel)
}

// SetDefault replaces the package-wide logger. Pass a logger configured
// with whatever level/handler the embedding application wants; components
// created afterward via With will derive from it.
func SetDefault(l *log.Logger) {
	defaultLogger = l
}

// SetLevel sets the default logger's level by name: "debug", "info",
// "warn", or "error". Unknown names are ignored.
func SetLevel(level string) {
	switch level {
	case "debug":
		defaultLogger.SetLevel(log.DebugLevel)
	case "info":
		defaultLogger.SetLevel(log.InfoLevel)
	case "warn":
		defaultLogger.SetLevel(log.WarnLevel)
	case "error":
		defaultLogger.SetLevel(log.ErrorLevel)
	}
}

// With returns a logger carrying the given key/value context, e.g.
// pglog.With("conn_id", id, "stmt_name", name).
func With(keyvals ...interface{}) *log.Logger {
	return defaultLogger.With(keyvals...)
}

// Default returns the package-wide logger.
func Default() *log.Logger {
	return defaultLogger
}
