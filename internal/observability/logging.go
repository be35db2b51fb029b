package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tbourn/go-docqa-web/internal/config"
)

// ParseLevel maps a config level name to zerolog. Unknown or empty names
// fall back to info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// LogOptions selects sinks for NewLogger.
type LogOptions struct {
	Level   string
	Pretty  bool
	File    config.LogFileConfig
	Console io.Writer // defaults to stderr
	Service string
}

// NewLogger builds the root logger: console (JSON, or human readable when
// Pretty) plus an optional rotating JSON file. It also sets the global
// level. The returned closer releases the file sink.
func NewLogger(o LogOptions) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(o.Level))

	console := o.Console
	if console == nil {
		console = os.Stderr
	}
	if o.Pretty {
		console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.Kitchen}
	}

	var (
		w      io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if o.File.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   o.File.Path,
			MaxSize:    o.File.MaxSizeMB,
			MaxBackups: o.File.MaxBackups,
			MaxAge:     o.File.MaxAgeDays,
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(console, lj)
		closer = lj
	}

	ctx := zerolog.New(w).With().Timestamp()
	if o.Service != "" {
		ctx = ctx.Str("service", o.Service)
	}
	return ctx.Logger(), closer
}

// LoggerFromConfig is NewLogger with the config's logging fields.
func LoggerFromConfig(cfg config.Config, service string) (zerolog.Logger, io.Closer) {
	return NewLogger(LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		File:    cfg.LogFile,
		Service: service,
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
