package profile

import (
	"context"
	"strings"

	"github.com/pavelc4/auriya/internal/cpu"
)

// Profile is the coarse device tuning state
type Profile int

const (
	Performance Profile = iota
	Balance
	Powersave
)

func (p Profile) String() string {
	switch p {
	case Performance:
		return "Performance"
	case Balance:
		return "Balance"
	case Powersave:
		return "Powersave"
	default:
		return "Unknown"
	}
}

// Parse accepts a profile name in any case. "balanced" is accepted for Balance.
func Parse(s string) (Profile, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "performance":
		return Performance, true
	case "balance", "balanced":
		return Balance, true
	case "powersave":
		return Powersave, true
	default:
		return Balance, false
	}
}

// Affinity maps a profile onto core classes: Performance runs on big and
// prime, Balance on big, Powersave on little. Anything else gets big and prime.
func (p Profile) Affinity(t cpu.Topology) cpu.Mask {
	switch p {
	case Balance:
		return t.Select(false, true, false)
	case Powersave:
		return t.Select(true, false, false)
	default:
		return t.Select(false, true, true)
	}
}

// Target is one apply request. Governor, DND and PID only matter where the
// profile uses them: PID is pinned only for Performance.
type Target struct {
	Profile  Profile
	Governor string
	DND      bool
	PID      int
}

func PerformanceTarget(governor string, dnd bool, pid int) Target {
	return Target{Profile: Performance, Governor: governor, DND: dnd, PID: pid}
}

func BalanceTarget(governor string) Target {
	return Target{Profile: Balance, Governor: governor}
}

func PowersaveTarget() Target {
	return Target{Profile: Powersave, Governor: "powersave"}
}

// Applier pushes a Target to the hardware.
type Applier interface {
	Apply(ctx context.Context, t Target) error
}
