package logger

import (
	"sync"
	"time"
)

// Debouncer suppresses repeats of the same message under a key until
// the window has elapsed. A different message always passes.
type Debouncer struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   map[string]debounced
}

type debounced struct {
	msg string
	at  time.Time
}

func NewDebouncer(window time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}

	return &Debouncer{
		window: window,
		now:    now,
		last:   make(map[string]debounced),
	}
}

// Allow reports whether msg should be logged under key, and records it if so.
func (d *Debouncer) Allow(key, msg string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	prev, ok := d.last[key]
	if ok && prev.msg == msg && now.Sub(prev.at) < d.window {
		return false
	}

	d.last[key] = debounced{msg: msg, at: now}

	return true
}

// Reset forgets the last message under key.
func (d *Debouncer) Reset(key string) {
	d.mu.Lock()
	delete(d.last, key)
	d.mu.Unlock()
}
