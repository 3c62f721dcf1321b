package telemetry_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pavelc4/auriya/internal/command"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activityDump = `
ACTIVITY MANAGER ACTIVITIES (dumpsys activity activities)
Display #0 (activities from top to bottom):
  * Task{a1b2c3 #42 type=standard A=10211:com.mobile.legends U=0 visible=true}
    mResumedActivity: ActivityRecord{7f3e2d1 u0 com.mobile.legends/com.moba.unityplugin.MobaGameUnityActivity t42}
  mCurrentFocus=Window{4d5e6f u0 com.mobile.legends/com.moba.unityplugin.MobaGameUnityActivity}
  VisibleActivityProcess:[ ProcessRecord{9a8b7c6 23456:com.mobile.legends/u0a211}]
`

func TestParsePowerState(t *testing.T) {
	ps := telemetry.ParsePowerState("  mWakefulness=Awake\n  mBatterySaverEnabled=false\n")
	assert.Equal(t, telemetry.PowerState{ScreenAwake: true}, ps)

	ps = telemetry.ParsePowerState("  mWakefulness=Asleep\n  mBatterySaverEnabled=true\n")
	assert.Equal(t, telemetry.PowerState{BatterySaver: true}, ps)
}

func TestParseForeground(t *testing.T) {
	assert.Equal(t, "com.mobile.legends", telemetry.ParseForeground(activityDump))

	focusOnly := "  mCurrentFocus=Window{4d5e6f u0 com.android.launcher3/com.android.launcher3.Launcher}\n"
	assert.Equal(t, "com.android.launcher3", telemetry.ParseForeground(focusOnly))

	assert.Equal(t, "", telemetry.ParseForeground("nothing here"))
}

func TestParseVisiblePIDs(t *testing.T) {
	assert.Equal(t, []int{23456}, telemetry.ParseVisiblePIDs(activityDump))
	assert.Empty(t, telemetry.ParseVisiblePIDs("VisibleActivityProcess:[]"))
}

func TestCmdlineMatches(t *testing.T) {
	assert.True(t, telemetry.CmdlineMatches([]byte("com.mobile.legends\x00"), "com.mobile.legends"))
	assert.True(t, telemetry.CmdlineMatches([]byte("com.mobile.legends:remote\x00"), "com.mobile.legends"))
	assert.False(t, telemetry.CmdlineMatches([]byte("com.other\x00"), "com.mobile.legends"))
}

func TestParseLayer(t *testing.T) {
	list := strings.Join([]string{
		"Background for SurfaceView[com.mobile.legends/com.moba.Main]#0",
		"SurfaceView[com.mobile.legends/com.moba.Main](BLAST)#1234",
		"com.android.systemui.ImageWallpaper#0",
	}, "\n")
	assert.Equal(t, "SurfaceView[com.mobile.legends/com.moba.Main](BLAST)#1234", telemetry.ParseLayer(list, "com.mobile.legends"))

	requested := "RequestedLayerState{SurfaceView[com.foo/com.foo.Main]#77 parentId=12 z=0}"
	assert.Equal(t, "SurfaceView[com.foo/com.foo.Main]#77", telemetry.ParseLayer(requested, "com.foo"))

	assert.Equal(t, "", telemetry.ParseLayer(list, "com.absent"))
}

func TestParseLatency(t *testing.T) {
	dump := "16666666\n" +
		"0\t0\t0\n" +
		"1000\t100000000\t1000\n" +
		"2000\t116666666\t2000\n"
	d, ok := telemetry.ParseLatency(dump)
	require.True(t, ok)
	assert.Equal(t, 16666666*time.Nanosecond, d)

	stall := "16666666\n1\t100000000\t1\n2\t400000000\t2\n"
	_, ok = telemetry.ParseLatency(stall)
	assert.False(t, ok)

	_, ok = telemetry.ParseLatency("16666666\n")
	assert.False(t, ok)
}

func TestParseSupportedModes(t *testing.T) {
	dump := `mDisplayInfos=... appsSupportedModes [{id=1, width=1080, height=2400, fps=60.000004, vsyncRate=60.000004}, {id=2, width=1080, height=2400, fps=90.0, vsyncRate=90.0}, {id=3, width=1080, height=2400, fps=120.00001, vsyncRate=120.00001}], mode=...`
	rates := telemetry.ParseSupportedModes(dump)
	require.Len(t, rates, 3)
	assert.InDelta(t, 60.0, rates[0], 0.01)
	assert.InDelta(t, 90.0, rates[1], 0.01)
	assert.InDelta(t, 120.0, rates[2], 0.01)

	assert.Nil(t, telemetry.ParseSupportedModes("no modes"))
}

func TestReadMaxTemperature(t *testing.T) {
	root := t.TempDir()
	for i, v := range []string{"45000", "71500", "-1000", "999000", "junk"} {
		dir := filepath.Join(root, "class", "thermal", fmt.Sprintf("thermal_zone%d", i))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "temp"), []byte(v+"\n"), 0o644))
	}

	c, err := telemetry.ReadMaxTemperature(root)
	require.NoError(t, err)
	assert.InDelta(t, 71.5, c, 0.001)

	_, err = telemetry.ReadMaxTemperature(t.TempDir())
	assert.True(t, errors.HasCode(err, telemetry.ErrNoThermalZone))
}

func TestBoundedAbandonsSlowCall(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := telemetry.Bounded(context.Background(), 20*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)

	v, err := telemetry.Bounded(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestAndroidForegroundAndPID(t *testing.T) {
	proc := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(proc, "23456"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(proc, "23456", "cmdline"), []byte("com.mobile.legends\x00"), 0o644))

	run := command.Func(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name == "dumpsys" && len(args) == 2 && args[0] == "activity" {
			return []byte(activityDump), nil
		}
		return nil, fmt.Errorf("unexpected %s %v", name, args)
	})

	cfg := telemetry.DefaultConfig()
	cfg.ProcRoot = proc
	a := telemetry.NewAndroid(run, cfg)

	pkg, err := a.ForegroundPackage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "com.mobile.legends", pkg)

	pid, err := a.PIDFor(context.Background(), "com.mobile.legends")
	require.NoError(t, err)
	assert.Equal(t, 23456, pid)

	pid, err = a.PIDFor(context.Background(), "com.other.game")
	require.NoError(t, err)
	assert.Zero(t, pid)
}

func TestAndroidFrameTimeRequeriesLayer(t *testing.T) {
	lists := 0
	latencyOK := false
	run := command.Func(func(_ context.Context, name string, args ...string) ([]byte, error) {
		switch {
		case len(args) == 2 && args[1] == "--list":
			lists++
			return []byte("SurfaceView[com.foo/com.foo.Main](BLAST)#1\n"), nil
		case len(args) == 3 && args[1] == "--latency":
			if !latencyOK {
				return []byte("16666666\n"), nil
			}
			return []byte("16666666\n1\t100000000\t1\n2\t111111111\t2\n"), nil
		}
		return nil, fmt.Errorf("unexpected")
	})

	a := telemetry.NewAndroid(run, telemetry.DefaultConfig())

	_, err := a.FrameTime(context.Background(), "com.foo", 1)
	assert.True(t, errors.HasCode(err, telemetry.ErrNoFrames))

	latencyOK = true
	d, err := a.FrameTime(context.Background(), "com.foo", 1)
	require.NoError(t, err)
	assert.Equal(t, 11111111*time.Nanosecond, d)
	assert.Equal(t, 2, lists, "layer looked up again after a failed sample")

	_, err = a.FrameTime(context.Background(), "com.foo", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, lists, "cached after success")
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, telemetry.ProcessAlive(os.Getpid()))
	assert.False(t, telemetry.ProcessAlive(0))
}
