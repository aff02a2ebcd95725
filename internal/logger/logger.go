// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the optional rotating log file. Rotation parameters follow
// lumberjack semantics; zero values fall back to its defaults.
type Options struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup points log.Logger at a console writer on console and, when opts.File is
// set, a rotating JSON log file as well. The returned closer flushes the file.
func Setup(console io.Writer, opts Options) io.Closer {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	var w io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file := opts.writer()
		w = zerolog.MultiLevelWriter(w, file)
		closer = file
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return closer
}

// SetupDefault installs the console logger on stderr without a file.
func SetupDefault() { Setup(os.Stderr, Options{}) }

func (o Options) writer() *lj.Logger {
	return &lj.Logger{
		Filename:   o.File,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   o.Compress,
	}
}

// ParseLevel maps a --log flag value to a level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
