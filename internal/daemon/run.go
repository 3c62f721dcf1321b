package daemon

import (
	"context"
	"time"

	"github.com/pavelc4/auriya/internal/config"
)

// Run ticks until ctx is cancelled. The interval adapts to the phase the
// last tick reached. Reload events are applied between ticks.
func (e *Engine) Run(ctx context.Context, reloads <-chan config.ReloadEvent) error {
	e.log.Info().Msg("Tick loop started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.release()
			e.log.Info().Msg("Tick loop stopped")
			return nil

		case ev, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			e.handleReload(ev)

		case <-timer.C:
			phase := e.Tick(ctx)
			next := e.interval(phase)
			e.log.Debug().Str("phase", phase.String()).Dur("next", next).Msg("Tick done")
			timer.Reset(next)
		}
	}
}

// release puts back a refresh rate still pinned for the last game. ctx is
// already cancelled here, so the display call gets its own deadline.
func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), displayTimeout)
	defer cancel()

	e.restoreRate(ctx, e.last.Pkg)
}

func (e *Engine) interval(phase Phase) time.Duration {
	s, err := e.shared.Config.Settings()
	if err != nil {
		s = config.DefaultSettings()
	}

	switch phase {
	case PhaseActive:
		return s.ActiveInterval()
	case PhaseSuspended:
		return s.SuspendedInterval()
	default:
		return s.IdleInterval()
	}
}

// handleReload reacts to a config file change. A settings change forgets
// the applied profile so the next tick re-applies it with the new
// governor and thresholds.
func (e *Engine) handleReload(ev config.ReloadEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Kind {
	case config.GameListChanged:
		e.log.Info().Int("games", ev.Games).Msg("Game list reloaded")
	case config.SettingsChanged:
		e.log.Info().Msg("Settings reloaded")
		e.last.forgetProfile()
	}
}
