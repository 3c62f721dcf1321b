package shared

import (
	"fmt"
	"sync"

	"github.com/pavelc4/auriya/internal/errors"
)

// Guarded is a value behind a RWMutex. A panic inside Update leaves the
// value in an unknown state, so the guard is marked poisoned and every
// later Read, Load or Update fails with ErrLockPoisoned until Store
// replaces the value wholesale.
type Guarded[T any] struct {
	mu       sync.RWMutex
	val      T
	poisoned bool
}

func NewGuarded[T any](v T) *Guarded[T] {
	return &Guarded[T]{val: v}
}

func poisonedError() errors.Error {
	return errors.New().New(errors.ErrLockPoisoned)
}

// Load returns a copy of the value.
func (g *Guarded[T]) Load() (T, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.poisoned {
		var zero T
		return zero, poisonedError()
	}

	return g.val, nil
}

// Read runs fn with the value under the read lock.
func (g *Guarded[T]) Read(fn func(T) error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.poisoned {
		return poisonedError()
	}

	return fn(g.val)
}

// Update runs fn with exclusive access to the value.
func (g *Guarded[T]) Update(fn func(*T) error) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.poisoned {
		return poisonedError()
	}

	defer func() {
		if r := recover(); r != nil {
			g.poisoned = true
			err = errors.New().Wrap(errors.ErrLockPoisoned, fmt.Errorf("panic during update: %v", r))
		}
	}()

	return fn(&g.val)
}

// Store replaces the value and clears poisoning.
func (g *Guarded[T]) Store(v T) {
	g.mu.Lock()
	g.val = v
	g.poisoned = false
	g.mu.Unlock()
}

func (g *Guarded[T]) Poisoned() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.poisoned
}
