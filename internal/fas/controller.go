package fas

import (
	"context"
	"sync"
	"time"

	"github.com/pavelc4/auriya/internal/logger"
)

// FrameSource samples the latest frame interval of a package
type FrameSource interface {
	FrameTime(ctx context.Context, pkg string, pid int) (time.Duration, error)
}

// ThermalSource reads the hottest thermal zone in Celsius
type ThermalSource interface {
	MaxTemperature(ctx context.Context) (float64, error)
}

// Decision is the result of one sub-tick
type Decision struct {
	Package     string
	PID         int
	Action      ScalingAction
	Metrics     Metrics
	Temperature float64
	Throttled   bool
	// Sampled is false when no frame could be read this sub-tick
	Sampled bool
}

// Controller owns the frame buffer of the attached package. All methods
// are serialized by one mutex, so sub-ticks never overlap and IPC reads
// observe a consistent buffer.
type Controller struct {
	mu      sync.Mutex
	frames  FrameSource
	thermal ThermalSource
	now     func() time.Time
	log     logger.Logger

	pkg    string
	pid    int
	buf    *FrameBuffer
	pinned uint32
	last   Decision
}

type ControllerOption func(*Controller)

// WithClock replaces time.Now for the buffer's usability timing
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

func NewController(frames FrameSource, thermal ThermalSource, opts ...ControllerOption) *Controller {
	c := &Controller{
		frames:  frames,
		thermal: thermal,
		now:     time.Now,
		log:     logger.With("fas"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.buf = NewFrameBuffer(nil, c.now)

	return c
}

// attach switches the controller to pkg. Must hold mu.
func (c *Controller) attach(pkg string, pid int) {
	if pkg != c.pkg {
		if c.pkg != "" {
			c.log.Debug().Str("from", c.pkg).Str("to", pkg).Msg("Package switch, clearing frame buffer")
		}
		c.buf.Clear()
		c.pkg = pkg
		c.last = Decision{}
	}
	c.pid = pid
}

// Detach forgets the attached package and its history
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attach("", 0)
}

// SetFPS pins the target rate. Zero returns to automatic detection.
func (c *Controller) SetFPS(fps uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pinned = fps
	if fps != 0 {
		c.buf.SetCandidates([]uint32{fps})
	}
}

// FPS returns the pinned target, else the detected one, else 0
func (c *Controller) FPS() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pinned != 0 {
		return c.pinned
	}

	return c.buf.Target()
}

// Pinned reports the target set through SetFPS, 0 when unpinned
func (c *Controller) Pinned() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pinned
}

// Last returns the most recent decision for the attached package
func (c *Controller) Last() Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// Tick runs one sub-tick for pkg. candidates is the ascending target set
// from the game config; thermalThreshold is in Celsius. Telemetry failures
// never escape: a failed thermal read counts as not throttled and a failed
// frame read yields Maintain with the buffer untouched.
func (c *Controller) Tick(ctx context.Context, pkg string, pid int, candidates []uint32, thermalThreshold float64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attach(pkg, pid)
	if c.pinned != 0 {
		candidates = []uint32{c.pinned}
	}
	c.buf.SetCandidates(candidates)

	d := Decision{Package: pkg, PID: pid}

	temp, err := c.thermal.MaxTemperature(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("Thermal read failed")
	} else {
		d.Temperature = temp
		d.Throttled = temp > thermalThreshold
	}

	frame, err := c.frames.FrameTime(ctx, pkg, pid)
	if err != nil {
		c.log.Debug().Err(err).Str("package", pkg).Msg("Frame sample failed")
	} else {
		c.buf.Push(frame)
		d.Sampled = true
	}

	d.Metrics = Metrics{
		State:    c.buf.State(),
		Target:   c.buf.Target(),
		FPSShort: c.buf.FPSShort(),
		FPSLong:  c.buf.FPSLong(),
	}

	switch {
	case d.Throttled:
		d.Action = Reduce
	case !d.Sampled:
		d.Action = Maintain
	default:
		d.Action = Decide(d.Metrics, false)
	}

	c.log.Debug().
		Str("package", pkg).
		Str("action", d.Action.String()).
		Str("state", d.Metrics.State.String()).
		Uint32("target", d.Metrics.Target).
		Float64("fps_short", d.Metrics.FPSShort).
		Float64("fps_long", d.Metrics.FPSLong).
		Float64("temp", d.Temperature).
		Msg("FAS sub-tick")

	c.last = d

	return d
}
