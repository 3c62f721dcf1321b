package cpu

import (
	"github.com/pavelc4/auriya/internal/errors"
	"golang.org/x/sys/unix"
)

// SetAffinity pins every thread group leader pid to mask.
func SetAffinity(pid int, mask Mask) error {
	if pid <= 0 {
		return errors.New().WithData(errors.ErrInvalidArgument, pid)
	}
	if mask == 0 {
		return errors.New().WithMessage(errors.ErrInvalidArgument, "empty affinity mask")
	}

	var set unix.CPUSet
	set.Zero()
	for _, c := range mask.CPUs() {
		set.Set(c)
	}

	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return errors.New().Wrap(errors.ErrApplyFailed, err)
	}

	return nil
}
