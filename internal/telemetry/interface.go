package telemetry

import (
	"context"
	"time"
)

// PowerState is the subset of power manager state the control loop acts on
type PowerState struct {
	ScreenAwake  bool
	BatterySaver bool
}

// Port is everything the control loop reads from the device. Every call
// may fail; callers fall back to the last known value or a safe default.
type Port interface {
	// PowerState reports screen and battery saver state
	PowerState(ctx context.Context) (PowerState, error)

	// ForegroundPackage returns the resumed package, "" when there is none
	ForegroundPackage(ctx context.Context) (string, error)

	// PIDFor resolves the main process of pkg, 0 when it is not running
	PIDFor(ctx context.Context, pkg string) (int, error)

	// FrameTime returns the most recent frame interval of pkg's surface
	FrameTime(ctx context.Context, pkg string, pid int) (time.Duration, error)

	// MaxTemperature returns the hottest thermal zone in Celsius
	MaxTemperature(ctx context.Context) (float64, error)

	// SupportedRefreshRates lists the display modes apps may request, in Hz
	SupportedRefreshRates(ctx context.Context) ([]float64, error)
}

// PackageLister enumerates installed packages
type PackageLister interface {
	ListPackages(ctx context.Context) (string, error)
}
