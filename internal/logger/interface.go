package logger

import "github.com/pavelc4/auriya/internal/errors"

// Logger is a component-scoped view of the global logger.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err errors.Error) *LogEvent
}

type componentLogger struct {
	name string
}

// With returns a Logger that tags every event with component=name.
// Events are built from the current global logger, so a later Init
// or SetLevel applies to loggers created earlier.
func With(name string) Logger {
	return &componentLogger{name: name}
}

func (c *componentLogger) Debug() *LogEvent {
	return &LogEvent{log.Debug().Str("component", c.name)}
}

func (c *componentLogger) Info() *LogEvent {
	return &LogEvent{log.Info().Str("component", c.name)}
}

func (c *componentLogger) Warn() *LogEvent {
	return &LogEvent{log.Warn().Str("component", c.name)}
}

func (c *componentLogger) Error() *LogEvent {
	return &LogEvent{log.Error().Str("component", c.name)}
}

func (c *componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("component", c.name).
		Str("error_code", string(err.Code())).
		AnErr("error", err)}
}
