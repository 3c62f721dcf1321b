package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/fas"
	"github.com/pavelc4/auriya/internal/profile"
	"github.com/pavelc4/auriya/internal/shared"
)

// LastState is the tick engine's memory between ticks. Only the engine
// reads or writes it.
type LastState struct {
	Pkg          string
	PID          int
	ScreenAwake  *bool
	BatterySaver *bool
	LastLog      time.Time
	Profile      *profile.Profile
	// Target is the last pushed target, pid and governor included
	Target       *profile.Target
}

func (s *LastState) setTarget(t profile.Target) {
	s.Profile = &t.Profile
	s.Target = &t
}

func (s *LastState) forgetProfile() {
	s.Profile = nil
	s.Target = nil
}

func (s *LastState) profileIs(p profile.Profile) bool {
	return s.Profile != nil && *s.Profile == p
}

func (s *LastState) targetIs(t profile.Target) bool {
	return s.Target != nil && *s.Target == t
}

// CurrentState is the snapshot published after every tick for IPC readers
type CurrentState struct {
	Pkg          string
	PID          int
	ScreenAwake  bool
	BatterySaver bool
	Profile      profile.Profile
}

// Shared holds every resource the tick engine and the IPC server both
// touch. Each field is guarded on its own; no code path holds two of
// these locks at once.
type Shared struct {
	Enabled  atomic.Bool
	Config   *config.Store
	Override *shared.Guarded[string]
	Current  *shared.Guarded[CurrentState]
	FAS      *fas.Controller
	Rates    *RateCache
}

// NewShared starts enabled with no override. fasCtl may be nil when FAS is
// not available on the device.
func NewShared(store *config.Store, fasCtl *fas.Controller, rates *RateCache) *Shared {
	s := &Shared{
		Config:   store,
		Override: shared.NewGuarded(""),
		Current:  shared.NewGuarded(CurrentState{Profile: profile.Balance}),
		FAS:      fasCtl,
		Rates:    rates,
	}
	s.Enabled.Store(true)

	return s
}

// RateSource lists the display modes apps may request
type RateSource interface {
	SupportedRefreshRates(ctx context.Context) ([]float64, error)
}

// RateCache remembers the supported refresh rates after the first
// successful read. The mode list does not change while the device runs.
type RateCache struct {
	src   RateSource
	rates *shared.Guarded[[]float64]
}

func NewRateCache(src RateSource) *RateCache {
	return &RateCache{
		src:   src,
		rates: shared.NewGuarded[[]float64](nil),
	}
}

func (c *RateCache) Get(ctx context.Context) ([]float64, error) {
	if rates, err := c.rates.Load(); err == nil && len(rates) > 0 {
		return rates, nil
	}

	rates, err := c.src.SupportedRefreshRates(ctx)
	if err != nil {
		return nil, err
	}
	c.rates.Store(rates)

	return rates, nil
}
