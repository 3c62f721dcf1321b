package profile

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var devfreqBoostNames = []string{
	"cpu-lat", "cpu-bw", "llccbw", "bus_llcc", "bus_ddr", "memlat", "cpubw", "kgsl-ddr-qos",
}

var busDCVSComponents = []string{"DDR", "LLCC", "L3"}

type snapdragon struct {
	sysRoot string
	kgsl    string

	// kgsl values captured at startup, restored by ApplyNormal
	origMinPwr string
	origMaxPwr string
}

func newSnapdragon(sysRoot string) *snapdragon {
	s := &snapdragon{sysRoot: sysRoot}

	kgsl := filepath.Join(sysRoot, "class", "kgsl", "kgsl-3d0")
	if exists(kgsl) {
		s.kgsl = kgsl
		s.origMinPwr = readTrim(filepath.Join(kgsl, "min_pwrlevel"))
		s.origMaxPwr = readTrim(filepath.Join(kgsl, "max_pwrlevel"))
	}

	return s
}

func (*snapdragon) Name() string {
	return "Snapdragon"
}

func (s *snapdragon) ApplyPerformance() error {
	var errs []error

	s.eachBusNode(func(dir, minFile, maxFile string, freqs []uint64) {
		top := strconv.FormatUint(freqs[len(freqs)-1], 10)
		errs = append(errs, writeIfExists(filepath.Join(dir, maxFile), top))
		errs = append(errs, writeIfExists(filepath.Join(dir, minFile), top))
	})

	if s.kgsl != "" {
		errs = append(errs, writeIfExists(filepath.Join(s.kgsl, "min_pwrlevel"), "0"))
		errs = append(errs, writeIfExists(filepath.Join(s.kgsl, "max_pwrlevel"), "0"))
	}

	return errors.Join(errs...)
}

func (s *snapdragon) ApplyNormal() error {
	var errs []error

	s.eachBusNode(func(dir, minFile, maxFile string, freqs []uint64) {
		errs = append(errs, writeIfExists(filepath.Join(dir, maxFile), strconv.FormatUint(freqs[len(freqs)-1], 10)))
		errs = append(errs, writeIfExists(filepath.Join(dir, minFile), strconv.FormatUint(freqs[0], 10)))
	})

	if s.kgsl != "" {
		if s.origMinPwr != "" {
			errs = append(errs, writeIfExists(filepath.Join(s.kgsl, "min_pwrlevel"), s.origMinPwr))
		}
		if s.origMaxPwr != "" {
			errs = append(errs, writeIfExists(filepath.Join(s.kgsl, "max_pwrlevel"), s.origMaxPwr))
		}
	}

	return errors.Join(errs...)
}

// eachBusNode visits memory-bus devfreq and bus_dcvs nodes with their
// available frequencies sorted ascending.
func (s *snapdragon) eachBusNode(fn func(dir, minFile, maxFile string, freqs []uint64)) {
	devfreq := filepath.Join(s.sysRoot, "class", "devfreq")
	if entries, err := os.ReadDir(devfreq); err == nil {
		for _, e := range entries {
			if !matchesAny(e.Name(), devfreqBoostNames) {
				continue
			}
			dir := filepath.Join(devfreq, e.Name())
			if freqs := availableFreqs(dir); len(freqs) > 0 {
				fn(dir, "min_freq", "max_freq", freqs)
			}
		}
	}

	for _, c := range busDCVSComponents {
		dir := filepath.Join(s.sysRoot, "devices", "system", "cpu", "bus_dcvs", c)
		if freqs := availableFreqs(dir); len(freqs) > 0 {
			fn(dir, "hw_min_freq", "hw_max_freq", freqs)
		}
	}
}

func matchesAny(name string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(name, s) {
			return true
		}
	}

	return false
}

func availableFreqs(dir string) []uint64 {
	raw := readTrim(filepath.Join(dir, "available_frequencies"))
	if raw == "" {
		return nil
	}

	var freqs []uint64
	for _, f := range strings.Fields(raw) {
		if v, err := strconv.ParseUint(f, 10, 64); err == nil {
			freqs = append(freqs, v)
		}
	}
	sort.Slice(freqs, func(i, j int) bool { return freqs[i] < freqs[j] })

	return freqs
}
