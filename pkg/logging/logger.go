package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger.
// Environment variables:
//   - LOG_LEVEL: logrus level name (default: info)
//   - LOG_FORMAT: "json" for logrus.JSONFormatter, anything else for the colored console format
//   - NO_COLOR: disables colors in the console format when set
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return logger
	}

	formatter := NewColoredJSONFormatter()
	formatter.DisableColors = os.Getenv("NO_COLOR") != ""
	logger.SetFormatter(formatter)
	return logger
}
