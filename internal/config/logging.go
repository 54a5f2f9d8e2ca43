package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
)

// ParseLogLevel maps a level name to a pion log level.
func ParseLogLevel(name string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return logging.LogLevelInfo, nil
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	}
	return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", name)
}

// NewLoggerFactory returns a leveled logger factory writing to w, with
// per-scope levels from LogScopes.
func (c *Config) NewLoggerFactory(w io.Writer) (*logging.DefaultLoggerFactory, error) {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	factory := logging.NewDefaultLoggerFactory()
	factory.Writer = w
	factory.DefaultLogLevel = level
	for scope, name := range c.LogScopes {
		scopeLevel, err := ParseLogLevel(name)
		if err != nil {
			return nil, fmt.Errorf("scope %s: %w", scope, err)
		}
		factory.ScopeLevels[scope] = scopeLevel
	}
	return factory, nil
}

// OpenLog opens the configured log file for appending, or returns stderr.
func (c *Config) OpenLog() (io.WriteCloser, error) {
	if c.LogFile == "" {
		return nopCloser{os.Stderr}, nil
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
