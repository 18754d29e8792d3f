package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global logger with configuration from environment variables.
// AUTOCROP_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
// AUTOCROP_LOG_FORMAT selects console (default) or json output.
func Init() {
	Setup(os.Getenv("AUTOCROP_LOG_LEVEL"), os.Getenv("AUTOCROP_LOG_FORMAT"))
}

// Setup applies an explicit level and format, e.g. from a config file.
func Setup(level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = zerolog.New(writer(format, os.Stderr)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func writer(format string, out io.Writer) io.Writer {
	if strings.EqualFold(format, "json") {
		return out
	}
	return zerolog.ConsoleWriter{Out: out}
}
