package daemon_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/daemon"
	"github.com/pavelc4/auriya/internal/fas"
	"github.com/pavelc4/auriya/internal/profile"
	"github.com/pavelc4/auriya/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const game = "com.mobile.legends"

type fakePort struct {
	mu         sync.Mutex
	power      telemetry.PowerState
	powerErr   error
	foreground string
	fgErr      error
	pids       map[string]int
	frame      time.Duration
	temp       float64
	rates      []float64

	powerCalls int
	fgCalls    int
	pidCalls   int
	frameCalls int
}

func newPort() *fakePort {
	return &fakePort{
		power: telemetry.PowerState{ScreenAwake: true},
		pids:  map[string]int{},
		frame: time.Second / 60,
		temp:  40,
		rates: []float64{60, 90, 120},
	}
}

func (p *fakePort) set(fn func(p *fakePort)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakePort) PowerState(context.Context) (telemetry.PowerState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.powerCalls++
	return p.power, p.powerErr
}

func (p *fakePort) ForegroundPackage(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fgCalls++
	return p.foreground, p.fgErr
}

func (p *fakePort) PIDFor(_ context.Context, pkg string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pidCalls++
	return p.pids[pkg], nil
}

func (p *fakePort) FrameTime(context.Context, string, int) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameCalls++
	return p.frame, nil
}

func (p *fakePort) MaxTemperature(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.temp, nil
}

func (p *fakePort) SupportedRefreshRates(context.Context) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rates, nil
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []profile.Target
	err     error
}

func (a *fakeApplier) Apply(_ context.Context, t profile.Target) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, t)
	return a.err
}

func (a *fakeApplier) targets() []profile.Target {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]profile.Target(nil), a.applied...)
}

type fakeDisplay struct {
	mu   sync.Mutex
	rate uint32
	sets []uint32
}

func (d *fakeDisplay) RefreshRate(context.Context) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate, nil
}

func (d *fakeDisplay) SetRefreshRate(_ context.Context, hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets = append(d.sets, hz)
	d.rate = hz
	return nil
}

type harness struct {
	port    *fakePort
	applier *fakeApplier
	display *fakeDisplay
	shared  *daemon.Shared
	engine  *daemon.Engine
	alive   map[int]bool
}

func newHarness(t *testing.T, games ...config.GameProfile) *harness {
	t.Helper()

	h := &harness{
		port:    newPort(),
		applier: &fakeApplier{},
		display: &fakeDisplay{rate: 60},
		alive:   map[int]bool{},
	}
	store := config.NewMemoryStore(t.TempDir(), config.DefaultSettings(), &config.GameList{Games: games})
	ctl := fas.NewController(h.port, h.port)
	h.shared = daemon.NewShared(store, ctl, daemon.NewRateCache(h.port))

	h.engine = daemon.NewEngine(h.shared, h.port, h.applier,
		daemon.WithDisplay(h.display),
		daemon.WithAliveFunc(func(pid int) bool { return h.alive[pid] }),
	)

	return h
}

func (h *harness) ticks(n int) daemon.Phase {
	var phase daemon.Phase
	for i := 0; i < n; i++ {
		phase = h.engine.Tick(context.Background())
	}
	return phase
}

func (h *harness) current(t *testing.T) daemon.CurrentState {
	t.Helper()
	cur, err := h.shared.Current.Load()
	require.NoError(t, err)
	return cur
}

func TestScreenOffAppliesPowersaveOnce(t *testing.T) {
	h := newHarness(t)
	h.port.set(func(p *fakePort) { p.power = telemetry.PowerState{ScreenAwake: false} })

	assert.Equal(t, daemon.PhaseSuspended, h.ticks(1))
	require.Len(t, h.applier.targets(), 1)
	assert.Equal(t, profile.Powersave, h.applier.targets()[0].Profile)

	assert.Equal(t, daemon.PhaseSuspended, h.ticks(1))
	assert.Len(t, h.applier.targets(), 1, "second identical tick is a no-op")

	cur := h.current(t)
	assert.False(t, cur.ScreenAwake)
	assert.Equal(t, profile.Powersave, cur.Profile)
	assert.Zero(t, h.port.fgCalls, "foreground is not resolved while suspended")
}

func TestBatterySaverSuspends(t *testing.T) {
	h := newHarness(t)
	h.port.set(func(p *fakePort) { p.power = telemetry.PowerState{ScreenAwake: true, BatterySaver: true} })

	assert.Equal(t, daemon.PhaseSuspended, h.ticks(1))
	require.Len(t, h.applier.targets(), 1)
	assert.Equal(t, profile.Powersave, h.applier.targets()[0].Profile)
}

func TestUnchangedInputsApplyOnce(t *testing.T) {
	h := newHarness(t)
	h.port.set(func(p *fakePort) { p.foreground = "com.android.launcher3" })

	h.ticks(2)

	targets := h.applier.targets()
	require.Len(t, targets, 1)
	assert.Equal(t, profile.BalanceTarget("schedutil"), targets[0])

	cur := h.current(t)
	assert.Equal(t, "com.android.launcher3", cur.Pkg)
	assert.Zero(t, cur.PID)
}

func TestTelemetryThrottling(t *testing.T) {
	h := newHarness(t)
	h.port.set(func(p *fakePort) { p.foreground = "com.android.launcher3" })

	h.ticks(5)

	assert.Equal(t, 2, h.port.powerCalls, "ticks 1 and 5")
	assert.Equal(t, 3, h.port.fgCalls, "ticks 1, 2 and 4")
}

func TestManagedGameThenFASSubTick(t *testing.T) {
	g := config.NewGameProfile(game)
	h := newHarness(t, g)
	h.port.set(func(p *fakePort) {
		p.foreground = game
		p.pids[game] = 4242
	})
	h.alive[4242] = true

	assert.Equal(t, daemon.PhaseActive, h.ticks(1))
	targets := h.applier.targets()
	require.Len(t, targets, 1)
	assert.Equal(t, profile.PerformanceTarget("performance", true, 4242), targets[0])

	cur := h.current(t)
	assert.Equal(t, game, cur.Pkg)
	assert.Equal(t, 4242, cur.PID)
	assert.Equal(t, profile.Performance, cur.Profile)

	assert.Equal(t, daemon.PhaseActive, h.ticks(3))
	assert.Len(t, h.applier.targets(), 1, "fast path never reapplies")
	assert.Equal(t, 1, h.port.pidCalls, "live pid is not re-resolved")
	assert.Equal(t, 3, h.port.frameCalls, "one FAS sample per fast-path tick")
}

func TestDeadPIDIsResolvedAgain(t *testing.T) {
	h := newHarness(t, config.NewGameProfile(game))
	h.port.set(func(p *fakePort) {
		p.foreground = game
		p.pids[game] = 100
	})
	h.alive[100] = true
	h.ticks(1)

	h.alive[100] = false
	h.port.set(func(p *fakePort) { p.pids[game] = 200 })
	h.ticks(1)

	assert.Equal(t, 2, h.port.pidCalls)
	assert.Equal(t, 200, h.engine.Last().PID)

	targets := h.applier.targets()
	require.Len(t, targets, 2, "relaunched process is pinned again")
	assert.Equal(t, 100, targets[0].PID)
	assert.Equal(t, profile.PerformanceTarget("performance", true, 200), targets[1])
}

func TestSwitchBetweenGamesAppliesEach(t *testing.T) {
	other := config.NewGameProfile("com.other.game")
	other.CPUGovernor = "walt"
	other.EnableDND = false
	h := newHarness(t, config.NewGameProfile(game), other)
	h.port.set(func(p *fakePort) {
		p.foreground = game
		p.pids[game] = 10
		p.pids[other.Package] = 20
	})
	h.alive[10] = true
	h.alive[20] = true
	h.ticks(1)

	h.port.set(func(p *fakePort) { p.foreground = other.Package })
	h.ticks(1)

	targets := h.applier.targets()
	require.Len(t, targets, 2)
	assert.Equal(t, profile.PerformanceTarget("performance", true, 10), targets[0])
	assert.Equal(t, profile.PerformanceTarget("walt", false, 20), targets[1])
}

func TestThermalReduceFallsBackToBaseline(t *testing.T) {
	h := newHarness(t, config.NewGameProfile(game))
	h.port.set(func(p *fakePort) {
		p.foreground = game
		p.pids[game] = 7
		p.temp = 95
	})
	h.alive[7] = true

	h.ticks(3)

	targets := h.applier.targets()
	require.Len(t, targets, 2)
	assert.Equal(t, profile.Performance, targets[0].Profile)
	assert.Equal(t, profile.Balance, targets[1].Profile)

	last := h.shared.FAS.Last()
	assert.Equal(t, fas.Reduce, last.Action)
	assert.True(t, last.Throttled)
}

func TestPIDNotFoundUsesBaseline(t *testing.T) {
	h := newHarness(t, config.NewGameProfile(game))
	h.port.set(func(p *fakePort) { p.foreground = game })

	assert.Equal(t, daemon.PhaseIdle, h.ticks(1))
	targets := h.applier.targets()
	require.Len(t, targets, 1)
	assert.Equal(t, profile.Balance, targets[0].Profile)
	assert.Equal(t, game, h.engine.Last().Pkg)
	assert.Zero(t, h.engine.Last().PID)
}

func TestNoForegroundClearsAndRestoresRate(t *testing.T) {
	g := config.NewGameProfile(game)
	g.RefreshRate = 120
	h := newHarness(t, g)
	h.port.set(func(p *fakePort) {
		p.foreground = game
		p.pids[game] = 9
	})
	h.alive[9] = true

	h.ticks(1)
	assert.Equal(t, []uint32{120}, h.display.sets)

	h.port.set(func(p *fakePort) { p.foreground = "" })
	h.ticks(1)

	assert.Equal(t, []uint32{120, 60}, h.display.sets, "device rate restored")
	last := h.engine.Last()
	assert.Empty(t, last.Pkg)
	assert.Zero(t, last.PID)

	targets := h.applier.targets()
	require.Len(t, targets, 2)
	assert.Equal(t, profile.Balance, targets[1].Profile)
}

func TestUnsupportedRateIsSkipped(t *testing.T) {
	g := config.NewGameProfile(game)
	g.RefreshRate = 144
	h := newHarness(t, g)
	h.port.set(func(p *fakePort) {
		p.foreground = game
		p.pids[game] = 9
	})

	h.ticks(1)
	assert.Empty(t, h.display.sets)
}

func TestOverrideWinsOverTelemetry(t *testing.T) {
	h := newHarness(t)
	h.port.set(func(p *fakePort) { p.foreground = "com.android.launcher3" })
	h.shared.Override.Store("foo.bar")

	h.ticks(1)

	assert.Equal(t, "foo.bar", h.current(t).Pkg)
	assert.Zero(t, h.port.fgCalls)
}

func TestDisabledSkipsTickBody(t *testing.T) {
	h := newHarness(t)
	h.shared.Enabled.Store(false)

	assert.Equal(t, daemon.PhaseDisabled, h.ticks(3))
	assert.Zero(t, h.port.powerCalls)
	assert.Empty(t, h.applier.targets())
}

func TestTelemetryFailureDoesNotAbortLoop(t *testing.T) {
	h := newHarness(t)
	h.port.set(func(p *fakePort) { p.powerErr = fmt.Errorf("dumpsys power: timeout") })

	assert.NotPanics(t, func() { h.ticks(3) })
	assert.Empty(t, h.applier.targets())

	h.port.set(func(p *fakePort) {
		p.powerErr = nil
		p.foreground = "com.android.launcher3"
	})
	h.ticks(2)
	assert.Len(t, h.applier.targets(), 1, "recovers once power is readable")
}

func TestApplyFailureIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.applier.err = fmt.Errorf("no cpufreq policies")
	h.port.set(func(p *fakePort) { p.foreground = "com.android.launcher3" })

	h.ticks(4)
	assert.Len(t, h.applier.targets(), 1)
}

func TestSetProfile(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.engine.SetProfile(context.Background(), profile.Powersave))
	assert.Equal(t, profile.Powersave, h.current(t).Profile)

	targets := h.applier.targets()
	require.Len(t, targets, 1)
	assert.Equal(t, profile.PowersaveTarget(), targets[0])
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.port.set(func(p *fakePort) { p.foreground = "com.android.launcher3" })

	ctx, cancel := context.WithCancel(context.Background())
	reloads := make(chan config.ReloadEvent, 1)
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, reloads) }()

	require.Eventually(t, func() bool {
		cur, err := h.shared.Current.Load()
		return err == nil && cur.Pkg == "com.android.launcher3"
	}, 2*time.Second, 10*time.Millisecond)

	reloads <- config.ReloadEvent{Kind: config.SettingsChanged}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRestoresRateOnExit(t *testing.T) {
	g := config.NewGameProfile(game)
	g.RefreshRate = 90
	h := newHarness(t, g)
	h.port.set(func(p *fakePort) {
		p.foreground = game
		p.pids[game] = 11
	})
	h.alive[11] = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, nil) }()

	require.Eventually(t, func() bool {
		h.display.mu.Lock()
		defer h.display.mu.Unlock()
		return len(h.display.sets) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	h.display.mu.Lock()
	defer h.display.mu.Unlock()
	assert.Equal(t, []uint32{90, 60}, h.display.sets)
}
