package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Critical LogLevel = 50
	Fatal    LogLevel = Critical
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

func (l LogLevel) zerolog() zerolog.Level {
	switch {
	case l >= Critical:
		return zerolog.FatalLevel
	case l >= Error:
		return zerolog.ErrorLevel
	case l >= Warning:
		return zerolog.WarnLevel
	case l >= Info:
		return zerolog.InfoLevel
	case l >= Debug:
		return zerolog.DebugLevel
	}
	return zerolog.TraceLevel
}

// ParseLogLevel maps a config string (debug, info, warn, error) to a LogLevel.
// Unknown values fall back to Info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warning
	case "error":
		return Error
	case "critical", "fatal":
		return Critical
	}
	return Info
}

// InitLogging configures the process-wide zerolog output. format is "json" or "text".
func InitLogging(level LogLevel, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level.zerolog())

	if format == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// Logger provides structured logging with context
type Logger struct {
	prefix string
	logger zerolog.Logger
}

// NewLogger creates a new logger with a given prefix. The prefix is attached to every
// entry as the "component" field.
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	l := &Logger{
		prefix: prefix,
		logger: log.Logger.With().Str("component", prefix).Logger(),
	}
	if len(logLevel) > 0 {
		l.SetLogLevel(logLevel[0])
	}
	return l
}

// NewLoggerWithWriter creates a JSON logger writing to w
func NewLoggerWithWriter(prefix string, w io.Writer) *Logger {
	return &Logger{
		prefix: prefix,
		logger: zerolog.New(w).With().Timestamp().Str("component", prefix).Logger(),
	}
}

// NopLogger discards everything
func NopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.logger = l.logger.Level(logLevel.zerolog())
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info().Fields(keyvals).Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error().Fields(keyvals).Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn().Fields(keyvals).Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug().Fields(keyvals).Msg(msg)
}

// LogError logs an error message
func LogError(err error) {
	if err != nil {
		log.Error().Err(err).Send()
	}
}
