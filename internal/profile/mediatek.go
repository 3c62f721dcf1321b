package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type mediatek struct {
	sysRoot  string
	procRoot string
}

func newMediaTek(sysRoot, procRoot string) *mediatek {
	return &mediatek{sysRoot: sysRoot, procRoot: procRoot}
}

func (*mediatek) Name() string {
	return "MediaTek"
}

type mtkKnob struct {
	path        string
	performance string
	normal      string
}

func (m *mediatek) knobs() []mtkKnob {
	return []mtkKnob{
		{filepath.Join(m.sysRoot, "kernel", "fpsgo", "common", "force_onoff"), "0", "2"},
		{filepath.Join(m.procRoot, "cpufreq", "cpufreq_cci_mode"), "1", "0"},
		{filepath.Join(m.procRoot, "cpufreq", "cpufreq_power_mode"), "3", "0"},
		{filepath.Join(m.sysRoot, "devices", "platform", "boot_dramboost", "dramboost", "dramboost"), "1", "0"},
		{filepath.Join(m.sysRoot, "devices", "system", "cpu", "eas", "enable"), "0", "2"},
		{filepath.Join(m.sysRoot, "kernel", "eara_thermal", "enable"), "0", "1"},
	}
}

func (m *mediatek) ApplyPerformance() error {
	errs := []error{m.setPPMPolicies(false)}
	for _, k := range m.knobs() {
		errs = append(errs, writeIfExists(k.path, k.performance))
	}

	return errors.Join(errs...)
}

func (m *mediatek) ApplyNormal() error {
	errs := []error{m.setPPMPolicies(true)}
	for _, k := range m.knobs() {
		errs = append(errs, writeIfExists(k.path, k.normal))
	}

	return errors.Join(errs...)
}

// setPPMPolicies toggles every "[idx] name" policy listed in policy_status.
func (m *mediatek) setPPMPolicies(enabled bool) error {
	path := filepath.Join(m.procRoot, "ppm", "policy_status")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	val := 0
	if enabled {
		val = 1
	}

	var errs []error
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[") {
			continue
		}
		idx, _, ok := strings.Cut(line[1:], "]")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			continue
		}
		errs = append(errs, os.WriteFile(path, []byte(fmt.Sprintf("%d %d", n, val)), 0o644))
	}

	return errors.Join(errs...)
}
