package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger.
// format is "json" or "text"; an unknown level falls back to info.
func Setup(level, format string) {
	Configure(logrus.StandardLogger(), os.Stderr, level, format)
}

// Configure applies level, format and output to logger
func Configure(logger *logrus.Logger, out io.Writer, level, format string) {
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// Component returns a logger entry tagged with a component name
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

// Discard returns an entry that drops everything, for tests and quiet callers
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
