package fas

import "time"

const (
	// Samples required before a buffer can become usable
	minUsableSamples = 60
	// Settle time after the last unusable mark
	minUsableAge = time.Second
	// Capacity multiplier in seconds of frames at the target rate
	bufferSeconds = 5
	// Capacity basis while no target is known
	fallbackCapacityFPS = 144
	// Short window while no target is known
	fallbackShortWindow = 60
	// fps_long may overshoot a candidate by this much and still select it
	targetTolerance = 3.0
	// Below max(smallest candidate - idleGap, idleFloor) the app is idle
	idleGap   = 10
	idleFloor = 10
)

// BufferState says whether frame metrics are trustworthy
type BufferState int

const (
	Unusable BufferState = iota
	Usable
)

func (s BufferState) String() string {
	if s == Usable {
		return "usable"
	}

	return "unusable"
}

// FrameBuffer is a bounded history of frame intervals, newest first, with
// the derived rates the scaling decision needs. It is not safe for
// concurrent use; Controller serializes access.
type FrameBuffer struct {
	frames     []time.Duration
	candidates []uint32
	now        func() time.Time

	fpsLong       float64
	fpsShort      float64
	target        uint32
	state         BufferState
	unusableSince time.Time
}

// NewFrameBuffer creates an empty, unusable buffer. candidates must be
// ascending (config.TargetFPS.Candidates); nil now means time.Now.
func NewFrameBuffer(candidates []uint32, now func() time.Time) *FrameBuffer {
	if now == nil {
		now = time.Now
	}
	b := &FrameBuffer{
		candidates: candidates,
		now:        now,
	}
	b.markUnusable()

	return b
}

// SetCandidates replaces the target set. A target outside the new set is
// dropped and detected again on the next push.
func (b *FrameBuffer) SetCandidates(candidates []uint32) {
	b.candidates = candidates
	if b.target != 0 && !contains(candidates, b.target) {
		b.target = 0
	}
}

func (b *FrameBuffer) Push(frame time.Duration) {
	limit := b.capacity()
	if len(b.frames) >= limit {
		b.frames = b.frames[:limit-1]
	}
	b.frames = append(b.frames, 0)
	copy(b.frames[1:], b.frames)
	b.frames[0] = frame

	b.updateFPS()
	b.tryBecomeUsable()
	b.detectTarget()
}

// Clear drops all samples and the target
func (b *FrameBuffer) Clear() {
	b.frames = b.frames[:0]
	b.fpsLong = 0
	b.fpsShort = 0
	b.target = 0
	b.markUnusable()
}

func (b *FrameBuffer) Len() int { return len(b.frames) }

func (b *FrameBuffer) FPSLong() float64 { return b.fpsLong }

func (b *FrameBuffer) FPSShort() float64 { return b.fpsShort }

func (b *FrameBuffer) State() BufferState { return b.state }

// Target returns the detected target rate, 0 when unresolved
func (b *FrameBuffer) Target() uint32 { return b.target }

func (b *FrameBuffer) capacity() int {
	basis := b.target
	if basis == 0 {
		basis = fallbackCapacityFPS
	}

	return int(basis) * bufferSeconds
}

func (b *FrameBuffer) markUnusable() {
	b.state = Unusable
	b.unusableSince = b.now()
}

func (b *FrameBuffer) updateFPS() {
	if len(b.frames) == 0 {
		return
	}

	b.fpsLong = rate(b.frames)

	window := int(b.target)
	if window == 0 {
		window = fallbackShortWindow
	}
	if window > len(b.frames) {
		window = len(b.frames)
	}
	b.fpsShort = rate(b.frames[:window])
}

func rate(frames []time.Duration) float64 {
	var total time.Duration
	for _, f := range frames {
		total += f
	}
	avg := total.Seconds() / float64(len(frames))
	if avg <= 0 {
		return 0
	}

	return 1 / avg
}

func (b *FrameBuffer) tryBecomeUsable() {
	if b.state != Unusable || len(b.frames) < minUsableSamples {
		return
	}
	if b.now().Sub(b.unusableSince) < minUsableAge {
		return
	}
	b.state = Usable
}

func (b *FrameBuffer) detectTarget() {
	if len(b.candidates) == 0 {
		return
	}

	if b.fpsLong < idleThreshold(b.candidates[0]) {
		if b.target != 0 || b.state == Usable {
			b.target = 0
			b.markUnusable()
		}
		return
	}

	b.target = SelectTarget(b.candidates, b.fpsLong)
}

func idleThreshold(smallest uint32) float64 {
	if smallest <= idleGap+idleFloor {
		return idleFloor
	}

	return float64(smallest - idleGap)
}

// SelectTarget returns the smallest candidate that fpsLong does not exceed
// by more than the tolerance, or the largest candidate.
func SelectTarget(candidates []uint32, fpsLong float64) uint32 {
	for _, c := range candidates {
		if fpsLong <= float64(c)+targetTolerance {
			return c
		}
	}

	return candidates[len(candidates)-1]
}

func contains(set []uint32, v uint32) bool {
	for _, c := range set {
		if c == v {
			return true
		}
	}

	return false
}
