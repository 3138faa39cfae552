// Package logging configures the service's structured JSON logger.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/prettygood-work/benefits-chat-demo/internal/config"
)

// Logger is the logger type handed around the service.
type Logger = *logrus.Logger

// Fields names structured log fields.
type Fields = logrus.Fields

// NewLogger returns a JSON logger at the configured level.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService returns a logger that stamps every entry with the
// service name.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	logger.AddHook(serviceHook{name: serviceName})
	return logger
}

// serviceHook attaches the service field to every entry. A hook survives
// call sites that log through the *logrus.Logger directly, where a bound
// Entry would not.
type serviceHook struct {
	name string
}

func (h serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.name
	return nil
}
