// Package logging builds the zerolog logger shared by the binaries
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/thereceipt/receipt-interpreter/internal/config"
)

// New returns a logger writing to stderr in the configured format
func New(cfg config.LogConfig, service string) zerolog.Logger {
	return build(cfg, service, colorable.NewColorableStderr(), true)
}

// NewWithWriter is New with an explicit destination and no colors
func NewWithWriter(cfg config.LogConfig, service string, w io.Writer) zerolog.Logger {
	return build(cfg, service, w, false)
}

func build(cfg config.LogConfig, service string, w io.Writer, color bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: !color}
	}

	logger := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	if service != "" {
		logger = logger.With().Str("service", service).Logger()
	}
	return logger
}

// ParseLevel maps a level name to zerolog, defaulting to info
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
