// Package logging wires up the run logger: zerolog console output on
// stderr, optionally teed into a size-rotated log file.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation bounds for the optional log file.
const (
	logFileMaxSizeMB = 10
	logFileBackups   = 3
)

// New builds the run logger. verbose selects debug level; logFile, when
// set, adds a rotating JSON sink alongside the console writer.
func New(verbose bool, logFile string) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var out io.Writer = console
	if logFile != "" {
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileBackups,
		})
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
