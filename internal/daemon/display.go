package daemon

import (
	"context"

	"github.com/pavelc4/auriya/internal/profile"
	"github.com/pavelc4/auriya/internal/telemetry"
)

// overrideRate pins a game's refresh rate. The device's own rate is saved
// once per package so restoreRate can put it back.
func (e *Engine) overrideRate(ctx context.Context, pkg string, hz uint32) {
	if e.display == nil {
		return
	}

	if _, saved := e.savedRates[pkg]; !saved {
		cur, err := telemetry.Bounded(ctx, displayTimeout, e.display.RefreshRate)
		if err != nil {
			e.reportError("display", err)
		} else {
			e.savedRates[pkg] = cur
			e.log.Debug().Str("package", pkg).Uint32("hz", cur).Msg("Saved refresh rate")
		}
	}

	var modes []float64
	if e.shared.Rates != nil {
		var err error
		if modes, err = e.shared.Rates.Get(ctx); err != nil {
			e.reportError("modes", err)
		}
	}

	if !profile.MatchRate(hz, modes) {
		if e.errs.Allow("rate:"+pkg, "unsupported") {
			e.log.Warn().Str("package", pkg).Uint32("hz", hz).Int("modes", len(modes)).Msg("Refresh rate not supported, skipping")
		}
		return
	}

	if err := e.setRate(ctx, hz); err != nil {
		e.reportError("display", err)
	}
}

func (e *Engine) restoreRate(ctx context.Context, pkg string) {
	if e.display == nil || pkg == "" {
		return
	}
	hz, ok := e.savedRates[pkg]
	if !ok {
		return
	}
	delete(e.savedRates, pkg)

	e.log.Info().Str("package", pkg).Uint32("hz", hz).Msg("Restoring refresh rate")
	if err := e.setRate(ctx, hz); err != nil {
		e.reportError("display", err)
	}
}

func (e *Engine) setRate(ctx context.Context, hz uint32) error {
	_, err := telemetry.Bounded(ctx, displayTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.display.SetRefreshRate(ctx, hz)
	})

	return err
}
