// Package telemetry provides the structured logger used across every
// package in this module. It exists because the teacher repo's own HTTP
// middleware stops at a "would use structured logging in production"
// comment; this fills that gap with zerolog, the logging library the rest
// of the retrieved corpus reaches for, instead of stdlib log.Printf.
package telemetry

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger every component logs through.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Level mirrors zerolog's levels without exposing the dependency to callers
// that just want to call Init.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global Logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init reconfigures the global Logger. Safe to call once at process start;
// the core packages never call it themselves so a host app controls format.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a component field, the
// way every subsystem below (bus, bridge, readmodel, ...) identifies itself.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
