package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/pavelc4/auriya/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the protocol name of the level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel accepts debug, info, warn/warning and error in any case
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, s)
	}
}

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options controls logger initialization
type Options struct {
	Level   LogLevel
	Service bool
	// File, when set, receives a copy of every line
	File string
}

// Init initializes the logger based on the given configuration
func Init(opts Options) error {
	output := consoleWriter(os.Stdout, opts.Service)

	var w io.Writer = output
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.New().Wrap(errors.ErrInitFailed, err)
		}
		w = zerolog.MultiLevelWriter(output, zerolog.ConsoleWriter{
			Out:        f,
			NoColor:    true,
			TimeFormat: time.RFC3339,
		})
	}

	log = zerolog.New(w).With().Timestamp().Logger()
	SetLevel(opts.Level)

	return nil
}

// consoleWriter drops timestamps under a service manager, which adds its own
func consoleWriter(out io.Writer, service bool) zerolog.ConsoleWriter {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}

	if service {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	return output
}

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// CurrentLevel returns the global log level
func CurrentLevel() LogLevel {
	return LogLevel(zerolog.GlobalLevel())
}

// IsService checks if the application is running detached from a terminal
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(err.Code())).
		AnErr("error", err)}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Fatal().
		Str("error_code", string(err.Code())).
		AnErr("error", err)}
}
