package config

import (
	"fmt"
	"time"
)

// Option adjusts how LoadOptions reads its sources
type Option func(*options) error

type options struct {
	envPrefix string
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "AURIYA"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WatcherOption adjusts a Watcher
type WatcherOption func(*Watcher)

// WithRetry sets how often and how far apart a failed reload is retried
func WithRetry(attempts int, delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		if attempts > 0 {
			w.retries = attempts
		}
		w.retryDelay = delay
	}
}

// WithQueueSize sets the capacity of the event channel
func WithQueueSize(n int) WatcherOption {
	return func(w *Watcher) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// ValidationError reports a settings field that failed validation
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.Field, e.Value, e.Reason)
}
