package metrics

import (
	"context"
	"time"
)

// Recorder stores control-loop decisions
type Recorder interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository is the storage behind a Recorder
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Event distinguishes what produced a snapshot
type Event string

const (
	// EventProfile is a coarse profile change applied by the tick engine
	EventProfile Event = "profile"
	// EventFAS is one FAS sub-tick
	EventFAS Event = "fas"
)

// Snapshot is one recorded decision
type Snapshot struct {
	Timestamp   time.Time
	Event       Event
	Package     string
	PID         int
	Profile     string
	Action      string
	FPSShort    float64
	FPSLong     float64
	TargetFPS   uint32
	Temperature float64
}
