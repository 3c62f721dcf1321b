package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pavelc4/auriya/internal/command"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
	"golang.org/x/sys/unix"
)

// Android collects telemetry from dumpsys and sysfs
type Android struct {
	run command.Runner
	cfg Config
	log logger.Logger

	mu     sync.Mutex
	layers map[string]string
}

func NewAndroid(run command.Runner, cfg Config) *Android {
	return &Android{
		run:    run,
		cfg:    cfg,
		log:    logger.With("telemetry"),
		layers: make(map[string]string),
	}
}

func (a *Android) dumpsys(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	return Bounded(ctx, timeout, func(ctx context.Context) (string, error) {
		out, err := a.run.Run(ctx, "dumpsys", args...)
		return string(out), err
	})
}

func (a *Android) PowerState(ctx context.Context) (PowerState, error) {
	out, err := a.dumpsys(ctx, a.cfg.Timeouts.Power, "power")
	if err != nil {
		return PowerState{}, err
	}

	return ParsePowerState(out), nil
}

func (a *Android) ForegroundPackage(ctx context.Context) (string, error) {
	out, err := a.dumpsys(ctx, a.cfg.Timeouts.Foreground, "activity", "activities")
	if err != nil {
		return "", err
	}

	return ParseForeground(out), nil
}

func (a *Android) PIDFor(ctx context.Context, pkg string) (int, error) {
	out, err := a.dumpsys(ctx, a.cfg.Timeouts.PID, "activity", "activities")
	if err != nil {
		return 0, err
	}

	for _, pid := range ParseVisiblePIDs(out) {
		cmdline, err := os.ReadFile(filepath.Join(a.cfg.ProcRoot, strconv.Itoa(pid), "cmdline"))
		if err != nil {
			continue
		}
		if CmdlineMatches(cmdline, pkg) {
			return pid, nil
		}
	}

	return 0, nil
}

// FrameTime samples the newest frame interval of pkg's SurfaceView. The
// layer name is cached per package and dropped on any failure so the next
// call looks it up again.
func (a *Android) FrameTime(ctx context.Context, pkg string, _ int) (time.Duration, error) {
	return Bounded(ctx, a.cfg.Timeouts.Frame, func(ctx context.Context) (time.Duration, error) {
		layer, err := a.layerFor(ctx, pkg)
		if err != nil {
			return 0, err
		}

		out, err := a.run.Run(ctx, "dumpsys", "SurfaceFlinger", "--latency", layer)
		if err != nil {
			a.forgetLayer(pkg)
			return 0, err
		}

		d, ok := ParseLatency(string(out))
		if !ok {
			a.forgetLayer(pkg)
			return 0, errors.New().WithData(ErrNoFrames, pkg)
		}

		return d, nil
	})
}

func (a *Android) layerFor(ctx context.Context, pkg string) (string, error) {
	a.mu.Lock()
	layer, ok := a.layers[pkg]
	a.mu.Unlock()
	if ok {
		return layer, nil
	}

	out, err := a.run.Run(ctx, "dumpsys", "SurfaceFlinger", "--list")
	if err != nil {
		return "", err
	}

	layer = ParseLayer(string(out), pkg)
	if layer == "" {
		return "", errors.New().WithData(ErrNoLayer, pkg)
	}

	a.mu.Lock()
	// one package is tracked at a time
	a.layers = map[string]string{pkg: layer}
	a.mu.Unlock()

	a.log.Debug().Str("package", pkg).Str("layer", layer).Msg("Resolved surface layer")

	return layer, nil
}

func (a *Android) forgetLayer(pkg string) {
	a.mu.Lock()
	delete(a.layers, pkg)
	a.mu.Unlock()
}

func (a *Android) MaxTemperature(ctx context.Context) (float64, error) {
	return Bounded(ctx, a.cfg.Timeouts.Thermal, func(context.Context) (float64, error) {
		return ReadMaxTemperature(a.cfg.SysRoot)
	})
}

// ReadMaxTemperature returns the hottest plausible thermal zone in Celsius
func ReadMaxTemperature(sysRoot string) (float64, error) {
	found := false
	hottest := 0.0
	for i := 0; i < thermalZones; i++ {
		path := filepath.Join(sysRoot, "class", "thermal", fmt.Sprintf("thermal_zone%d", i), "temp")
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		milli, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			continue
		}
		c := float64(milli) / 1000
		if c <= 0 || c >= maxSaneCelsius {
			continue
		}
		found = true
		if c > hottest {
			hottest = c
		}
	}

	if !found {
		return 0, errors.New().New(ErrNoThermalZone)
	}

	return hottest, nil
}

func (a *Android) SupportedRefreshRates(ctx context.Context) ([]float64, error) {
	out, err := a.dumpsys(ctx, a.cfg.Timeouts.Display, "display")
	if err != nil {
		return nil, err
	}

	rates := ParseSupportedModes(out)
	if len(rates) == 0 {
		return nil, errors.New().New(ErrNoModes)
	}

	return rates, nil
}

func (a *Android) ListPackages(ctx context.Context) (string, error) {
	return Bounded(ctx, a.cfg.Timeouts.Packages, func(ctx context.Context) (string, error) {
		out, err := a.run.Run(ctx, "pm", "list", "packages")
		return string(out), err
	})
}

// ProcessAlive reports whether pid exists, without resolving its package
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)

	return err == nil || err == unix.EPERM
}
