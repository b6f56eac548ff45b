package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", level, ErrInvalidConfig)
	}
	return l, nil
}

// SetupLogging configures the global zerolog logger.
func (c *Config) SetupLogging() error {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	if c.Logging.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
	return nil
}
