package ipc_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/daemon"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/fas"
	"github.com/pavelc4/auriya/internal/ipc"
	"github.com/pavelc4/auriya/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	mu  sync.Mutex
	set []profile.Profile
	err error
}

func (f *fakeProfiles) SetProfile(_ context.Context, p profile.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = append(f.set, p)
	return f.err
}

type fakePackages struct{}

func (fakePackages) ListPackages(context.Context) (string, error) {
	return "package:com.android.settings\npackage:com.game", nil
}

type fakeRates struct{}

func (fakeRates) SupportedRefreshRates(context.Context) ([]float64, error) {
	return []float64{120.00001, 59.94, 90, 60.0001}, nil
}

type noFrames struct{}

func (noFrames) FrameTime(context.Context, string, int) (time.Duration, error) {
	return 0, fmt.Errorf("no surface")
}

func (noFrames) MaxTemperature(context.Context) (float64, error) {
	return 30, nil
}

type fixture struct {
	shared   *daemon.Shared
	store    *config.Store
	profiles *fakeProfiles
	socket   string
	restarts int
	shutdown chan struct{}
	reloads  chan config.ReloadEvent
}

func startServer(t *testing.T) *fixture {
	t.Helper()

	// unix socket paths are length limited, so keep it short
	sockDir, err := os.MkdirTemp("", "aur")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })

	cfgDir := t.TempDir()
	games := &config.GameList{Games: []config.GameProfile{config.NewGameProfile("com.game")}}
	require.NoError(t, games.Save(filepath.Join(cfgDir, config.GameListFile)))

	f := &fixture{
		store:    config.NewMemoryStore(cfgDir, config.DefaultSettings(), games),
		profiles: &fakeProfiles{},
		socket:   filepath.Join(sockDir, "ipc.sock"),
		shutdown: make(chan struct{}),
		reloads:  make(chan config.ReloadEvent, 1),
	}
	f.shared = daemon.NewShared(f.store, fas.NewController(noFrames{}, noFrames{}), daemon.NewRateCache(fakeRates{}))

	var once sync.Once
	srv := ipc.NewServer(ipc.Config{SocketPath: f.socket}, f.shared, f.profiles, fakePackages{},
		ipc.WithRestarter(func(string, string) error {
			f.restarts++
			return nil
		}),
		ipc.WithShutdown(func() { once.Do(func() { close(f.shutdown) }) }),
		ipc.WithReloadNotify(f.reloads),
	)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})

	return f
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func (f *fixture) dial(t *testing.T) *client {
	t.Helper()

	conn, err := net.Dial("unix", f.socket)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
	assert.Equal(t, "OK AURIYA IPC\n", c.line())

	return c
}

func (c *client) line() string {
	c.t.Helper()
	s, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return s
}

func (c *client) send(cmd string) string {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, "%s\n", cmd)
	require.NoError(c.t, err)
	return c.line()
}

func TestPingAndUnknown(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "PONG\n", c.send("PING"))
	assert.Equal(t, "PONG\n", c.send("ping"))
	assert.True(t, strings.HasPrefix(c.send("FROBNICATE"), "ERR "))
	assert.Equal(t, "ERR usage: SET_FPS <number>\n", c.send("SET_FPS x"))
	assert.Equal(t, "PONG\n", c.send("PING"), "connection survives errors")
}

func TestStatus(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	resp := c.send("STATUS")
	assert.True(t, strings.HasPrefix(resp, "ENABLED=true PACKAGES=1 OVERRIDE=None LOG_LEVEL="), resp)

	assert.Equal(t, "OK DISABLED\n", c.send("DISABLE"))
	assert.False(t, f.shared.Enabled.Load())
	assert.Contains(t, c.send("STATUS"), "ENABLED=false")

	assert.Equal(t, "OK ENABLED\n", c.send("ENABLE"))
	assert.True(t, f.shared.Enabled.Load())
}

func TestInjectThenGetPID(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "PKG=None PID=None\n", c.send("GETPID"))

	assert.Equal(t, "OK INJECT\n", c.send("INJECT foo.bar"))
	assert.Equal(t, "PKG=foo.bar PID=None\n", c.send("GETPID"))
	assert.Contains(t, c.send("STATUS"), "OVERRIDE=foo.bar")

	f.shared.Current.Store(daemon.CurrentState{Pkg: "foo.bar", PID: 321})
	assert.Equal(t, "PKG=foo.bar PID=321\n", c.send("GET_PID"))

	assert.Equal(t, "OK CLEAR_INJECT\n", c.send("CLEAR_INJECT"))
	override, err := f.shared.Override.Load()
	require.NoError(t, err)
	assert.Empty(t, override)
}

func TestQuitClosesConnection(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "BYE\n", c.send("QUIT"))
	_, err := c.r.ReadString('\n')
	assert.Error(t, err)
}

func TestInputTooLong(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "ERR input too long\n", c.send("INJECT "+strings.Repeat("a", 300)))
	assert.Equal(t, "ERR input too long\n", c.send(strings.Repeat("b", 10000)))
	assert.Equal(t, "ERR input too long\n", c.send("PING"+strings.Repeat(" ", 300)))
	assert.Equal(t, "PONG\n", c.send("PING"))
}

func TestGameListMutationsPersist(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "OK ADD_GAME com.other\n", c.send("ADD_GAME com.other"))
	assert.True(t, strings.HasPrefix(c.send("ADD_GAME com.other"), "ERR ADD_GAME "))

	assert.Equal(t, "OK UPDATE_GAME com.other\n", c.send("UPDATE_GAME com.other fps_array=90,60 rate=90 dnd=false"))
	assert.True(t, strings.HasPrefix(c.send("UPDATE_GAME com.missing fps=60"), "ERR UPDATE_GAME "))

	onDisk, err := config.LoadGameList(f.store.GameListPath())
	require.NoError(t, err)
	g, ok := onDisk.Find("com.other")
	require.True(t, ok)
	assert.Equal(t, config.TargetFPS{90, 60}, g.TargetFPS)
	assert.Equal(t, uint32(90), g.RefreshRate)
	assert.False(t, g.EnableDND)

	var list []config.GameProfile
	require.NoError(t, json.Unmarshal([]byte(c.send("GET_GAMELIST")), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "com.other", list[1].Package)

	assert.Equal(t, "OK REMOVE_GAME com.game\n", c.send("REMOVE_GAME com.game"))
	assert.True(t, strings.HasPrefix(c.send("REMOVE_GAME com.game"), "ERR REMOVE_GAME "))

	onDisk, err = config.LoadGameList(f.store.GameListPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"com.other"}, onDisk.Packages())
}

func TestUpdateGameRejectsUnloadableFPS(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	for _, line := range []string{
		"UPDATE_GAME com.game fps=0",
		"UPDATE_GAME com.game fps=5000",
		"UPDATE_GAME com.game fps_array=0,90",
	} {
		assert.Equal(t, "ERR fps must be between 1 and 1000\n", c.send(line), line)
	}

	onDisk, err := config.LoadGameList(f.store.GameListPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"com.game"}, onDisk.Packages())

	_, err = config.NewStore(filepath.Dir(f.store.GameListPath()))
	require.NoError(t, err)
	assert.Equal(t, "OK RELOADED 1\n", c.send("RELOAD"))
}

func TestFPSAndRates(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "FPS=0\n", c.send("GET_FPS"))
	assert.Equal(t, "OK SET_FPS 90\n", c.send("SET_FPS 90"))
	assert.Equal(t, "FPS=90\n", c.send("GETFPS"))
	assert.Equal(t, uint32(90), f.shared.FAS.Pinned())

	assert.Equal(t, "OK SET_FPS 0\n", c.send("SETFPS 0"))
	assert.Equal(t, "FPS=0\n", c.send("GET_FPS"))

	assert.Equal(t, "[60,90,120]\n", c.send("GET_SUPPORTED_RATES"))
}

func TestSetProfile(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "OK SET_PROFILE Powersave\n", c.send("SET_PROFILE powersave"))

	f.profiles.mu.Lock()
	f.profiles.err = fmt.Errorf("no governor")
	f.profiles.mu.Unlock()
	assert.Equal(t, "ERR SET_PROFILE no governor\n", c.send("SETPROFILE balance"))

	f.profiles.mu.Lock()
	defer f.profiles.mu.Unlock()
	assert.Equal(t, []profile.Profile{profile.Powersave, profile.Balance}, f.profiles.set)
}

func TestReload(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "OK RELOADED 1\n", c.send("RELOAD"))
	select {
	case ev := <-f.reloads:
		assert.Equal(t, config.SettingsChanged, ev.Kind)
	default:
		t.Fatal("reload not announced")
	}

	require.NoError(t, os.WriteFile(f.store.GameListPath(), []byte("[[game]]\npackage = \"\"\n"), 0o644))
	assert.True(t, strings.HasPrefix(c.send("RELOAD"), "ERR RELOAD "))
	assert.Contains(t, c.send("STATUS"), "PACKAGES=1", "previous config retained")
}

func TestListPackages(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	assert.Equal(t, "package:com.android.settings\n", c.send("LIST_PACKAGES"))
	assert.Equal(t, "package:com.game\n", c.line())
}

func TestPoisonedOverride(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	err := f.shared.Override.Update(func(*string) error { panic("boom") })
	require.True(t, errors.HasCode(err, errors.ErrLockPoisoned))
	require.True(t, f.shared.Override.Poisoned())

	assert.Equal(t, "ERR lock poisoned\n", c.send("INJECT x.y"))
	assert.Equal(t, "ERR lock poisoned\n", c.send("STATUS"))
	assert.Equal(t, "PONG\n", c.send("PING"))
}

func TestRestart(t *testing.T) {
	f := startServer(t)
	c := f.dial(t)

	_, err := fmt.Fprintf(c.conn, "RESTART\n")
	require.NoError(t, err)

	select {
	case <-f.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not triggered")
	}
	assert.Equal(t, 1, f.restarts)

	_, err = c.r.ReadString('\n')
	assert.Error(t, err, "connection closes without a reply")
}

func TestConcurrentClients(t *testing.T) {
	f := startServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c := f.dial(t)
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			pkg := fmt.Sprintf("pkg.%d", i)
			for j := 0; j < 20; j++ {
				if _, err := fmt.Fprintf(c.conn, "INJECT %s\nSTATUS\n", pkg); err != nil {
					return
				}
				_, _ = c.r.ReadString('\n')
				_, _ = c.r.ReadString('\n')
			}
		}(i, c)
	}
	wg.Wait()

	c := f.dial(t)
	assert.Contains(t, c.send("STATUS"), "OVERRIDE=pkg.")
}
