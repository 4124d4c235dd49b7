package main

import (
	"io"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// LoggerConfig is the operator log configuration, shared by all commands
type LoggerConfig struct {
	level  string
	logger log.Logger
}

// Register adds the log flags and builds the logger before any command runs
func (l *LoggerConfig) Register(app *kingpin.Application, w io.Writer) {
	app.Flag("log.level", "Only log messages with the given severity or above. One of: [debug, info, warn, error]").
		Default("warn").EnumVar(&l.level, "debug", "info", "warn", "error")

	app.PreAction(func(*kingpin.ParseContext) error {
		l.logger = newLogger(w, l.level)
		return nil
	})
}

// Logger returns the configured logger, or a no-op logger before parsing
func (l *LoggerConfig) Logger() log.Logger {
	if l.logger == nil {
		return log.NewNopLogger()
	}
	return l.logger
}

func newLogger(w io.Writer, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(lvl, level.WarnValue())))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}
