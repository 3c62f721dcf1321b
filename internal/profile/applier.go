package profile

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pavelc4/auriya/internal/command"
	"github.com/pavelc4/auriya/internal/cpu"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
)

// SysfsApplier writes governors through cpufreq sysfs, toggles DND through
// the notification service, pins the game pid, and runs vendor tweaks.
type SysfsApplier struct {
	sysRoot  string
	run      command.Runner
	tweaker  Tweaker
	topology cpu.Topology
	setAff   func(pid int, m cpu.Mask) error
	log      logger.Logger
}

type ApplierOption func(*SysfsApplier)

// WithAffinityFunc replaces sched_setaffinity, mainly for tests.
func WithAffinityFunc(fn func(pid int, m cpu.Mask) error) ApplierOption {
	return func(a *SysfsApplier) {
		a.setAff = fn
	}
}

func NewSysfsApplier(sysRoot string, run command.Runner, tweaker Tweaker, topo cpu.Topology, opts ...ApplierOption) *SysfsApplier {
	if tweaker == nil {
		tweaker = generic{name: "Unknown"}
	}

	a := &SysfsApplier{
		sysRoot:  sysRoot,
		run:      run,
		tweaker:  tweaker,
		topology: topo,
		setAff:   cpu.SetAffinity,
		log:      logger.With("profile"),
	}
	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Apply runs every step even when an earlier one fails and reports the
// failures together as ErrApplyFailed.
func (a *SysfsApplier) Apply(ctx context.Context, t Target) error {
	governor := t.Governor
	if governor == "" {
		switch t.Profile {
		case Performance:
			governor = "performance"
		case Powersave:
			governor = "powersave"
		default:
			governor = "schedutil"
		}
	}

	a.log.Info().
		Str("profile", t.Profile.String()).
		Str("governor", governor).
		Bool("dnd", t.DND).
		Int("pid", t.PID).
		Msg("Applying profile")

	var failures []string
	fail := func(step string, err error) {
		if err != nil {
			failures = append(failures, step+": "+err.Error())
		}
	}

	fail("governor", a.writeGovernor(governor))
	fail("dnd", a.setDND(ctx, t.DND))

	switch t.Profile {
	case Performance:
		if t.PID > 0 {
			mask := t.Profile.Affinity(a.topology)
			fail("affinity", a.setAff(t.PID, mask))
		}
		fail(a.tweaker.Name(), a.tweaker.ApplyPerformance())
	default:
		fail(a.tweaker.Name(), a.tweaker.ApplyNormal())
	}

	if len(failures) > 0 {
		return errors.New().WithData(errors.ErrApplyFailed, failures)
	}

	return nil
}

func (a *SysfsApplier) writeGovernor(governor string) error {
	paths, _ := filepath.Glob(filepath.Join(a.sysRoot, "devices", "system", "cpu", "cpu*", "cpufreq", "scaling_governor"))
	if len(paths) == 0 {
		return errors.New().WithMessage(errors.ErrApplyFailed, "no cpufreq policies")
	}

	var firstErr error
	for _, p := range paths {
		if err := os.WriteFile(p, []byte(governor), 0o644); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (a *SysfsApplier) setDND(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}

	_, err := a.run.Run(ctx, "cmd", "notification", "set_dnd", state)
	return err
}
