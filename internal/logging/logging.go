// Package logging
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls how the process logger is built.
type Options struct {
	Level string // debug, info, warn, error
	File  string // optional log file; stdout when empty
}

// New builds the process-wide logger. Invalid levels fall back to info and an
// unwritable log file falls back to stdout; logging setup must never abort the
// trading process.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if opts.File != "" {
		file, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logger.WithError(err).Warnf("Logging | Cannot open log file %s, using stdout", opts.File)
		} else {
			logger.SetOutput(io.MultiWriter(os.Stdout, file))
		}
	}

	return logger
}
