package fas

import "fmt"

// ScalingAction is the outcome of one FAS sub-tick
type ScalingAction int

const (
	Maintain ScalingAction = iota
	Boost
	Reduce
)

func (a ScalingAction) String() string {
	switch a {
	case Boost:
		return "boost"
	case Reduce:
		return "reduce"
	case Maintain:
		return "maintain"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

const (
	// Proportional gain applied to the frame-time error in ms
	kp = 0.05
	// fps_short this far under target counts as jank
	jankMargin      = 2.0
	boostThreshold  = 0.5
	reduceThreshold = -0.5
)

// Metrics is a read-only view of a FrameBuffer at decision time
type Metrics struct {
	State    BufferState
	Target   uint32
	FPSShort float64
	FPSLong  float64
}

// Decide maps frame metrics and thermal state to a scaling action.
// Thermal throttling always wins; without a usable buffer and a target
// there is nothing to control.
func Decide(m Metrics, thermalThrottle bool) ScalingAction {
	if thermalThrottle {
		return Reduce
	}
	if m.State != Usable || m.Target == 0 || m.FPSShort <= 0 {
		return Maintain
	}

	target := float64(m.Target)
	janked := m.FPSShort < target-jankMargin

	// frame budget minus the observed frame time, in ms
	errMs := 1000/target - 1000/m.FPSShort
	control := errMs * kp

	switch {
	case janked || control > boostThreshold:
		return Boost
	case control < reduceThreshold:
		return Reduce
	default:
		return Maintain
	}
}
