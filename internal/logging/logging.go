package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Init initializes the global logger. The console format is for terminals,
// json for the server and log shippers.
func Init(verbose bool, format string) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stderr
	if format != FormatJSON {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// NewLogger creates a new logger with optional writers
func NewLogger(writers ...io.Writer) zerolog.Logger {
	if len(writers) == 0 {
		return log.Logger
	}

	if len(writers) == 1 {
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
