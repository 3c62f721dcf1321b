package telemetry

import "github.com/pavelc4/auriya/internal/errors"

const (
	ErrUnavailable = errors.ErrTelemetryUnavailable
	ErrTimeout     = errors.ErrTimeout

	ErrNoLayer       = errors.ErrorCode("telemetry_no_surface_layer")
	ErrNoFrames      = errors.ErrorCode("telemetry_no_frames")
	ErrNoThermalZone = errors.ErrorCode("telemetry_no_thermal_zone")
	ErrNoModes       = errors.ErrorCode("telemetry_no_display_modes")
)
