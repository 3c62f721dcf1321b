package telemetry

import "time"

const (
	defaultSysRoot  = "/sys"
	defaultProcRoot = "/proc"

	thermalZones = 20
	// Readings outside (0, 150) C are sensor garbage
	maxSaneCelsius = 150.0
	// Present-time deltas above this are stalls, not frames
	maxFrameInterval = 200 * time.Millisecond
)

// Timeouts bound each collector call. A call that overruns is abandoned.
type Timeouts struct {
	Thermal    time.Duration
	Frame      time.Duration
	Power      time.Duration
	Foreground time.Duration
	PID        time.Duration
	Display    time.Duration
	Packages   time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Thermal:    200 * time.Millisecond,
		Frame:      500 * time.Millisecond,
		Power:      1000 * time.Millisecond,
		Foreground: 1000 * time.Millisecond,
		PID:        1000 * time.Millisecond,
		Display:    2000 * time.Millisecond,
		Packages:   2000 * time.Millisecond,
	}
}

// Config locates the kernel interfaces the collectors read
type Config struct {
	SysRoot  string
	ProcRoot string
	Timeouts Timeouts
}

func DefaultConfig() Config {
	return Config{
		SysRoot:  defaultSysRoot,
		ProcRoot: defaultProcRoot,
		Timeouts: DefaultTimeouts(),
	}
}
