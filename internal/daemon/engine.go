package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/fas"
	"github.com/pavelc4/auriya/internal/logger"
	"github.com/pavelc4/auriya/internal/metrics"
	"github.com/pavelc4/auriya/internal/profile"
	"github.com/pavelc4/auriya/internal/telemetry"
)

const (
	powerEvery      = 5
	foregroundEvery = 2

	tickErrorWindow = 30 * time.Second
	changeLogWindow = 2 * time.Second

	applyTimeout   = 2 * time.Second
	displayTimeout = 2 * time.Second
)

// RefreshRateControl pins the panel refresh rate
type RefreshRateControl interface {
	RefreshRate(ctx context.Context) (uint32, error)
	SetRefreshRate(ctx context.Context, hz uint32) error
}

// Phase tells the run loop how soon to tick again
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseSuspended
	PhaseDisabled
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseSuspended:
		return "suspended"
	case PhaseDisabled:
		return "disabled"
	default:
		return "idle"
	}
}

// Engine is the per-tick state machine. Tick bodies are serialized; the
// engine owns LastState and publishes CurrentState after each tick.
type Engine struct {
	mu sync.Mutex

	shared    *Shared
	telemetry telemetry.Port
	applier   profile.Applier
	display   RefreshRateControl
	recorder  metrics.Recorder
	alive     func(pid int) bool
	now       func() time.Time
	log       logger.Logger
	errs      *logger.Debouncer

	tick       uint64
	last       LastState
	savedRates map[string]uint32
}

type EngineOption func(*Engine)

// WithDisplay enables per-game refresh rates
func WithDisplay(d RefreshRateControl) EngineOption {
	return func(e *Engine) {
		e.display = d
	}
}

// WithRecorder stores profile changes and FAS decisions
func WithRecorder(r metrics.Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithAliveFunc replaces the process existence check
func WithAliveFunc(fn func(pid int) bool) EngineOption {
	return func(e *Engine) {
		e.alive = fn
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(sh *Shared, port telemetry.Port, applier profile.Applier, opts ...EngineOption) *Engine {
	e := &Engine{
		shared:     sh,
		telemetry:  port,
		applier:    applier,
		recorder:   metrics.Noop(),
		alive:      telemetry.ProcessAlive,
		now:        time.Now,
		log:        logger.With("daemon"),
		savedRates: make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.errs = logger.NewDebouncer(tickErrorWindow, e.now)

	return e
}

// Last returns a copy of the engine's memory
func (e *Engine) Last() LastState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.last
}

// Tick runs one pass of the state machine. It never fails: errors are
// logged, debounced, and the next tick starts from whatever state this
// one reached.
func (e *Engine) Tick(ctx context.Context) Phase {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.shared.Enabled.Load() {
		return PhaseDisabled
	}

	e.tick++
	e.log.Debug().Uint64("tick", e.tick).Msg("Tick")

	phase, err := e.step(ctx)
	if err != nil {
		e.reportError("tick", err)
	}
	e.publish()

	return phase
}

func (e *Engine) step(ctx context.Context) (Phase, error) {
	settings, err := e.shared.Config.Settings()
	if err != nil {
		return PhaseIdle, err
	}
	games, err := e.shared.Config.Games()
	if err != nil {
		return PhaseIdle, err
	}

	power, err := e.power(ctx)
	if err != nil {
		return PhaseIdle, err
	}
	if !power.ScreenAwake || power.BatterySaver {
		e.suspend(ctx, power)
		return PhaseSuspended, nil
	}
	e.notePower(power)

	pkg, fetched, err := e.foreground(ctx)
	if err != nil {
		return PhaseIdle, err
	}
	if pkg == "" {
		if fetched {
			e.noForeground(ctx, settings)
		}
		return PhaseIdle, nil
	}

	game, managed := games.Find(pkg)

	if pkg == e.last.Pkg && e.last.PID != 0 && e.alive(e.last.PID) {
		if managed {
			e.fasStep(ctx, settings, game)
			return PhaseActive, nil
		}
		return PhaseIdle, nil
	}

	if !managed {
		e.unmanaged(ctx, settings, pkg, "not whitelisted")
		return PhaseIdle, nil
	}

	pid, err := e.telemetry.PIDFor(ctx, pkg)
	if err != nil {
		e.reportError("pid", err)
	}
	if pid <= 0 {
		e.unmanaged(ctx, settings, pkg, "PID not found")
		return PhaseIdle, nil
	}

	e.managed(ctx, settings, game, pid)

	return PhaseActive, nil
}

// power is fetched on the first tick and every powerEvery-th tick, and on
// every tick until one read succeeds. In between, and when a fetch fails,
// the last reading is reused.
func (e *Engine) power(ctx context.Context) (telemetry.PowerState, error) {
	last := telemetry.PowerState{ScreenAwake: true}
	known := e.last.ScreenAwake != nil
	if known {
		last.ScreenAwake = *e.last.ScreenAwake
	}
	if e.last.BatterySaver != nil {
		last.BatterySaver = *e.last.BatterySaver
	}

	if known && e.tick != 1 && e.tick%powerEvery != 0 {
		return last, nil
	}

	ps, err := e.telemetry.PowerState(ctx)
	if err != nil {
		if !known {
			return telemetry.PowerState{}, err
		}
		e.reportError("power", err)
		return last, nil
	}

	return ps, nil
}

func (e *Engine) notePower(ps telemetry.PowerState) {
	changed := e.last.ScreenAwake == nil || *e.last.ScreenAwake != ps.ScreenAwake ||
		e.last.BatterySaver == nil || *e.last.BatterySaver != ps.BatterySaver
	if changed {
		e.log.Info().Msg("Screen on and battery saver off")
	}
	e.rememberPower(ps)
}

func (e *Engine) rememberPower(ps telemetry.PowerState) {
	awake, saver := ps.ScreenAwake, ps.BatterySaver
	e.last.ScreenAwake = &awake
	e.last.BatterySaver = &saver
}

// foreground resolves the package to manage. An override always wins.
// Otherwise telemetry is asked on the first tick and every
// foregroundEvery-th tick; fetched reports whether it was asked.
func (e *Engine) foreground(ctx context.Context) (pkg string, fetched bool, err error) {
	override, err := e.shared.Override.Load()
	if err != nil {
		e.reportError("override", err)
	} else if override != "" {
		return override, true, nil
	}

	if e.tick != 1 && e.tick%foregroundEvery != 0 {
		return e.last.Pkg, false, nil
	}

	pkg, err = e.telemetry.ForegroundPackage(ctx)
	if err != nil {
		if e.last.Pkg == "" {
			return "", false, err
		}
		e.reportError("foreground", err)
		return e.last.Pkg, false, nil
	}

	return pkg, true, nil
}

// suspend handles screen off or battery saver
func (e *Engine) suspend(ctx context.Context, ps telemetry.PowerState) {
	if !e.last.profileIs(profile.Powersave) {
		e.apply(ctx, profile.PowersaveTarget(), "screen off or battery saver")
		e.log.Info().
			Bool("screen_awake", ps.ScreenAwake).
			Bool("battery_saver", ps.BatterySaver).
			Msg("Applied Powersave")
	}
	e.rememberPower(ps)
}

// noForeground returns to the baseline profile and forgets the package
func (e *Engine) noForeground(ctx context.Context, s config.Settings) {
	e.applyBaseline(ctx, s, "no foreground")

	if e.last.Pkg != "" || e.last.PID != 0 {
		if e.shouldLogChange() {
			e.log.Info().Msg("No foreground app detected")
		}
		e.restoreRate(ctx, e.last.Pkg)
		e.last.Pkg = ""
		e.last.PID = 0
		e.detachFAS()
	}
}

// unmanaged covers a package outside the whitelist or one whose process
// could not be found
func (e *Engine) unmanaged(ctx context.Context, s config.Settings, pkg, reason string) {
	changed := e.last.Pkg != pkg || e.last.PID != 0
	if e.last.Pkg != pkg {
		e.restoreRate(ctx, e.last.Pkg)
	}

	e.last.Pkg = pkg
	e.last.PID = 0
	e.detachFAS()

	e.applyBaseline(ctx, s, reason)

	if changed && e.shouldLogChange() {
		e.log.Info().Str("package", pkg).Str("reason", reason).Msg("Foreground changed")
	}
}

// managed applies the game's profile and refresh rate
func (e *Engine) managed(ctx context.Context, s config.Settings, game config.GameProfile, pid int) {
	if (e.last.Pkg != game.Package || e.last.PID != pid) && e.shouldLogChange() {
		e.log.Info().Str("package", game.Package).Int("pid", pid).Msg("Foreground game")
	}

	if e.last.Pkg != game.Package {
		e.restoreRate(ctx, e.last.Pkg)
	}

	e.last.Pkg = game.Package
	e.last.PID = pid

	// a relaunch or a switch between games needs its own pid pinned and
	// governor written even when the coarse profile stays the same
	target := gameTarget(s, game, pid)
	if !e.last.targetIs(target) {
		e.apply(ctx, target, "game "+game.Package)
	}

	if game.RefreshRate != 0 {
		e.overrideRate(ctx, game.Package, game.RefreshRate)
	}
}

// fasStep runs one FAS sub-tick for the running game and maps its
// decision onto the coarse profiles.
func (e *Engine) fasStep(ctx context.Context, s config.Settings, game config.GameProfile) {
	if !s.FAS.Enabled || e.shared.FAS == nil {
		e.log.Debug().Str("package", game.Package).Msg("Same app with live PID, skip reapply")
		return
	}

	d := e.shared.FAS.Tick(ctx, game.Package, e.last.PID,
		game.TargetFPS.Candidates(), s.ThermalThresholdFor(game.Mode))

	switch d.Action {
	case fas.Boost:
		if !e.last.profileIs(profile.Performance) {
			e.log.Info().Str("package", game.Package).Msg("FAS boost, applying Performance")
			e.apply(ctx, profile.PerformanceTarget(gameGovernor(game), game.EnableDND, e.last.PID), "fas boost")
		}
	case fas.Reduce:
		base := baselineTarget(s)
		if !e.last.profileIs(base.Profile) {
			e.log.Info().
				Str("package", game.Package).
				Str("profile", base.Profile.String()).
				Bool("thermal", d.Throttled).
				Msg("FAS reduce")
			e.apply(ctx, base, "fas reduce")
		}
	}

	e.record(ctx, &metrics.Snapshot{
		Timestamp:   e.now(),
		Event:       metrics.EventFAS,
		Package:     game.Package,
		PID:         e.last.PID,
		Profile:     e.currentProfile(s).String(),
		Action:      d.Action.String(),
		FPSShort:    d.Metrics.FPSShort,
		FPSLong:     d.Metrics.FPSLong,
		TargetFPS:   d.Metrics.Target,
		Temperature: d.Temperature,
	})
}

func (e *Engine) applyBaseline(ctx context.Context, s config.Settings, reason string) {
	target := baselineTarget(s)
	if e.last.profileIs(target.Profile) {
		return
	}
	e.apply(ctx, target, reason)
}

// apply pushes t and records it as the current profile. An apply failure
// is structural (a knob missing on this device), so it is logged and not
// retried: the profile counts as applied either way.
func (e *Engine) apply(ctx context.Context, t profile.Target, reason string) {
	_, err := telemetry.Bounded(ctx, applyTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.applier.Apply(ctx, t)
	})
	if err != nil {
		if e.errs.Allow("apply", err.Error()) {
			e.log.Warn().Err(err).Str("profile", t.Profile.String()).Str("reason", reason).Msg("Profile applied with failures")
		}
	} else {
		e.log.Info().
			Str("profile", t.Profile.String()).
			Str("governor", t.Governor).
			Bool("dnd", t.DND).
			Str("reason", reason).
			Msg("Applied profile")
	}

	e.last.setTarget(t)

	e.record(ctx, &metrics.Snapshot{
		Timestamp: e.now(),
		Event:     metrics.EventProfile,
		Package:   e.last.Pkg,
		PID:       t.PID,
		Profile:   t.Profile.String(),
		Action:    reason,
	})
}

// SetProfile applies p immediately, outside the tick cadence. The tick
// engine treats it as the current profile from then on.
func (e *Engine) SetProfile(ctx context.Context, p profile.Profile) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.shared.Config.Settings()
	if err != nil {
		return err
	}

	t := profileTarget(settings, p)

	_, err = telemetry.Bounded(ctx, applyTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.applier.Apply(ctx, t)
	})
	e.last.setTarget(t)
	e.publish()

	return err
}

func (e *Engine) detachFAS() {
	if e.shared.FAS != nil {
		e.shared.FAS.Detach()
	}
}

func (e *Engine) record(ctx context.Context, s *metrics.Snapshot) {
	if err := e.recorder.Record(ctx, s); err != nil {
		e.reportError("metrics", err)
	}
}

func (e *Engine) shouldLogChange() bool {
	now := e.now()
	if !e.last.LastLog.IsZero() && now.Sub(e.last.LastLog) < changeLogWindow {
		return false
	}
	e.last.LastLog = now

	return true
}

func (e *Engine) reportError(key string, err error) {
	if !e.errs.Allow(key, err.Error()) {
		e.log.Debug().Err(err).Str("source", key).Msg("Error suppressed")
		return
	}

	var appErr errors.Error
	if errors.As(err, &appErr) {
		e.log.ErrorWithCode(appErr).Str("source", key).Msg("Tick error")
		return
	}
	e.log.Error().Err(err).Str("source", key).Msg("Tick error")
}

func (e *Engine) currentProfile(s config.Settings) profile.Profile {
	if e.last.Profile != nil {
		return *e.last.Profile
	}

	return defaultProfile(s)
}

func (e *Engine) publish() {
	settings, _ := e.shared.Config.Settings()
	cur := CurrentState{
		Pkg:     e.last.Pkg,
		PID:     e.last.PID,
		Profile: e.currentProfile(settings),
	}
	if e.last.ScreenAwake != nil {
		cur.ScreenAwake = *e.last.ScreenAwake
	}
	if e.last.BatterySaver != nil {
		cur.BatterySaver = *e.last.BatterySaver
	}

	e.shared.Current.Store(cur)
}
