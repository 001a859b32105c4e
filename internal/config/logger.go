package config

import (
	"github.com/sirupsen/logrus"
)

// NewLogger creates the logrus logger used by the binaries. An unparsable
// level falls back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()

	// Set timestamp format with milliseconds
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}
