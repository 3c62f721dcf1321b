package profile

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/pavelc4/auriya/internal/command"
	"github.com/pavelc4/auriya/internal/errors"
)

// refreshMatchTolerance is how close a requested rate must be to a
// supported mode before it is applied.
const refreshMatchTolerance = 0.1

// Display pins the panel refresh rate through the system settings provider.
type Display struct {
	run command.Runner
}

func NewDisplay(run command.Runner) *Display {
	return &Display{run: run}
}

// RefreshRate returns the pinned minimum rate, 0 when the system is on auto.
func (d *Display) RefreshRate(ctx context.Context) (uint32, error) {
	out, err := d.run.Run(ctx, "settings", "get", "system", "min_refresh_rate")
	if err != nil {
		return 0, err
	}

	s := strings.TrimSpace(string(out))
	if s == "" || s == "null" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrTelemetryUnavailable, err)
	}

	return uint32(math.Round(f)), nil
}

func (d *Display) SetRefreshRate(ctx context.Context, hz uint32) error {
	v := strconv.FormatUint(uint64(hz), 10)
	if _, err := d.run.Run(ctx, "settings", "put", "system", "min_refresh_rate", v); err != nil {
		return err
	}
	_, err := d.run.Run(ctx, "settings", "put", "system", "peak_refresh_rate", v)

	return err
}

// ResetRefreshRate returns the panel to automatic rate selection.
func (d *Display) ResetRefreshRate(ctx context.Context) error {
	return d.SetRefreshRate(ctx, 0)
}

// MatchRate reports whether hz is within tolerance of one of modes.
func MatchRate(hz uint32, modes []float64) bool {
	for _, m := range modes {
		if math.Abs(m-float64(hz)) < refreshMatchTolerance {
			return true
		}
	}

	return false
}
