package session

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/luhtfiimanal/serialterm/internal/config"
)

// NewLogger builds the session logger from opts. Entries go to stderr
// unless opts.LogFile names a file, which is appended to. The returned
// function closes that file.
func NewLogger(opts config.Options, stderr io.Writer) (*logrus.Logger, func() error, error) {
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(stderr)

	if opts.LogFile == "" {
		return logger, func() error { return nil }, nil
	}
	f, err := os.OpenFile(opts.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(f)
	return logger, f.Close, nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
