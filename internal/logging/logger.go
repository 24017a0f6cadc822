// Package logging builds the zerolog logger shared by all components.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger construction.
type Config struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"` // console or json
	Output string `json:"output" yaml:"output" mapstructure:"output"` // stderr, stdout or a file path
}

// DefaultConfig returns info level console logging to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stderr"}
}

// New creates a logger; the returned closer releases the log file if one was opened.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	var (
		writer io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
	case "stdout":
		writer = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), closer, err
		}
		writer, closer = f, f
	}
	if strings.ToLower(cfg.Format) != "json" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339, NoColor: writer != os.Stderr && writer != os.Stdout}
	}
	logger := zerolog.New(writer).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return logger, closer, nil
}

// ParseLevel maps a textual level onto zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
