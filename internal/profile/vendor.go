package profile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pavelc4/auriya/internal/command"
)

// Tweaker is the vendor-specific part of a profile switch.
type Tweaker interface {
	Name() string
	ApplyPerformance() error
	ApplyNormal() error
}

type socPattern struct {
	prefixes []string
	vendor   string
}

var platformPatterns = []socPattern{
	{[]string{"mt", "k6"}, "MediaTek"},
	{[]string{"sm", "sdm", "msm", "apq"}, "Snapdragon"},
	{[]string{"exynos"}, "Exynos"},
	{[]string{"ud710", "ums"}, "Unisoc"},
	{[]string{"gs"}, "Tensor"},
}

var hardwarePatterns = []struct {
	substr string
	vendor string
}{
	{"mt", "MediaTek"},
	{"qcom", "Snapdragon"},
	{"exynos", "Exynos"},
	{"samsung", "Exynos"},
}

// DetectVendor identifies the SoC family from system properties, then from
// vendor-only kernel interfaces.
func DetectVendor(ctx context.Context, run command.Runner, sysRoot, procRoot string) string {
	getprop := func(key string) string {
		out, err := run.Run(ctx, "getprop", key)
		if err != nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(string(out)))
	}

	if p := getprop("ro.board.platform"); p != "" {
		for _, pat := range platformPatterns {
			for _, prefix := range pat.prefixes {
				if strings.HasPrefix(p, prefix) {
					return pat.vendor
				}
			}
		}
	}

	if h := getprop("ro.hardware"); h != "" {
		for _, pat := range hardwarePatterns {
			if strings.Contains(h, pat.substr) {
				return pat.vendor
			}
		}
	}

	if exists(filepath.Join(procRoot, "ppm")) {
		return "MediaTek"
	}
	if exists(filepath.Join(sysRoot, "class", "kgsl", "kgsl-3d0")) {
		return "Snapdragon"
	}

	return "Unknown"
}

// NewTweaker returns the implementation for vendor.
func NewTweaker(vendor, sysRoot, procRoot string) Tweaker {
	switch vendor {
	case "Snapdragon":
		return newSnapdragon(sysRoot)
	case "MediaTek":
		return newMediaTek(sysRoot, procRoot)
	default:
		return generic{name: vendor}
	}
}

type generic struct {
	name string
}

func (g generic) Name() string           { return g.name }
func (generic) ApplyPerformance() error { return nil }
func (generic) ApplyNormal() error      { return nil }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeIfExists writes value to path when path exists. A missing path is
// not an error: the knob is simply absent on this kernel.
func writeIfExists(path, value string) error {
	if !exists(path) {
		return nil
	}

	return os.WriteFile(path, []byte(value), 0o644)
}

func readTrim(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(raw))
}
