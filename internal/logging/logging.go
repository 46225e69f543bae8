package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Fields represents structured logging fields
type Fields = logrus.Fields

// New creates a JSON logrus logger writing to stdout at the given level.
func New(level string) *logrus.Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(levelFromString(level))
	return logger
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *logrus.Logger {
	return NewWithWriter("error", io.Discard)
}

func levelFromString(value string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return logrus.ErrorLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}
