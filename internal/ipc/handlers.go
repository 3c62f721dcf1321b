package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sort"
	"syscall"

	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
)

const helpText = `CMDS:
  HELP | ?
  STATUS
  ENABLE | DISABLE
  RELOAD
  RESTART
  SETLOG <DEBUG|INFO|WARN|ERROR>
  INJECT <pkg>
  CLEAR_INJECT
  GETPID
  PING
  QUIT
  SET_PROFILE <PERFORMANCE|BALANCE|POWERSAVE>
  ADD_GAME <pkg>
  REMOVE_GAME <pkg>
  UPDATE_GAME <pkg> [gov=<g>] [dnd=<bool>] [fps=<n>] [fps_array=<a,b>] [rate=<hz>] [mode=<m>]
  LIST_PACKAGES
  GET_GAMELIST
  SET_FPS <n>
  GET_FPS
  GET_SUPPORTED_RATES
`

const lockPoisoned = "ERR lock poisoned\n"

// handle runs cmd and returns the response and whether the session ends
func (s *Server) handle(ctx context.Context, cmd Command) (string, bool) {
	switch c := cmd.(type) {
	case Help:
		return helpText, false
	case Ping:
		return "PONG\n", false
	case Quit:
		return "BYE\n", true
	case Status:
		return s.status(), false
	case Enable:
		s.shared.Enabled.Store(true)
		s.log.Info().Msg("Enabled via IPC")
		return "OK ENABLED\n", false
	case Disable:
		s.shared.Enabled.Store(false)
		s.log.Info().Msg("Disabled via IPC")
		return "OK DISABLED\n", false
	case Reload:
		return s.reload(), false
	case Restart:
		return s.restartDaemon()
	case SetLog:
		logger.SetLevel(c.Level)
		s.log.Info().Str("level", c.Level.String()).Msg("Log level changed")
		return "OK SET_LOG\n", false
	case Inject:
		if err := s.shared.Override.Update(func(o *string) error { *o = c.Package; return nil }); err != nil {
			return lockPoisoned, false
		}
		s.log.Info().Str("package", c.Package).Msg("Foreground override set")
		return "OK INJECT\n", false
	case ClearInject:
		if err := s.shared.Override.Update(func(o *string) error { *o = ""; return nil }); err != nil {
			return lockPoisoned, false
		}
		s.log.Info().Msg("Foreground override cleared")
		return "OK CLEAR_INJECT\n", false
	case GetPID:
		return s.getPID(), false
	case SetProfile:
		if s.profiles == nil {
			return "ERR SET_PROFILE no profile control\n", false
		}
		if err := s.profiles.SetProfile(ctx, c.Profile); err != nil {
			return fmt.Sprintf("ERR SET_PROFILE %s\n", err), false
		}
		return fmt.Sprintf("OK SET_PROFILE %s\n", c.Profile), false
	case AddGame:
		return s.mutateGames("ADD_GAME", c.Package, func(g *config.GameList) error {
			return g.Add(config.NewGameProfile(c.Package))
		}), false
	case RemoveGame:
		return s.mutateGames("REMOVE_GAME", c.Package, func(g *config.GameList) error {
			return g.Remove(c.Package)
		}), false
	case UpdateGame:
		return s.mutateGames("UPDATE_GAME", c.Package, func(g *config.GameList) error {
			return g.Update(c.Package, config.GameUpdate{
				Governor:    c.Governor,
				DND:         c.DND,
				TargetFPS:   c.TargetFPS,
				FPSArray:    c.FPSArray,
				RefreshRate: c.RefreshRate,
				Mode:        c.Mode,
			})
		}), false
	case ListPackages:
		return s.listPackages(ctx), false
	case GetGameList:
		return s.gameList(), false
	case SetFPS:
		if s.shared.FAS == nil {
			return "ERR SET_FPS fas unavailable\n", false
		}
		s.shared.FAS.SetFPS(c.FPS)
		s.log.Info().Uint32("fps", c.FPS).Msg("FAS target pinned")
		return fmt.Sprintf("OK SET_FPS %d\n", c.FPS), false
	case GetFPS:
		var fps uint32
		if s.shared.FAS != nil {
			fps = s.shared.FAS.FPS()
		}
		return fmt.Sprintf("FPS=%d\n", fps), false
	case GetSupportedRates:
		return s.supportedRates(ctx), false
	}

	return "ERR " + msgUnknown + "\n", false
}

func (s *Server) status() string {
	games, err := s.shared.Config.Games()
	if err != nil {
		return lockPoisoned
	}
	override, err := s.shared.Override.Load()
	if err != nil {
		return lockPoisoned
	}
	if override == "" {
		override = "None"
	}

	return fmt.Sprintf("ENABLED=%t PACKAGES=%d OVERRIDE=%s LOG_LEVEL=%s\n",
		s.shared.Enabled.Load(), games.Len(), override, logger.CurrentLevel())
}

// getPID reports the injected package until the tick engine has picked it
// up, then the engine's view.
func (s *Server) getPID() string {
	cur, err := s.shared.Current.Load()
	if err != nil {
		return lockPoisoned
	}
	override, err := s.shared.Override.Load()
	if err != nil {
		return lockPoisoned
	}

	switch {
	case override != "" && override != cur.Pkg:
		return fmt.Sprintf("PKG=%s PID=None\n", override)
	case cur.Pkg != "" && cur.PID > 0:
		return fmt.Sprintf("PKG=%s PID=%d\n", cur.Pkg, cur.PID)
	case cur.Pkg != "":
		return fmt.Sprintf("PKG=%s PID=None\n", cur.Pkg)
	default:
		return "PKG=None PID=None\n"
	}
}

func (s *Server) reload() string {
	n, err := s.shared.Config.Reload()
	if err != nil {
		s.log.Warn().Err(err).Msg("Reload rejected, keeping previous config")
		return errLine(fmt.Errorf("RELOAD %w", err))
	}

	s.log.Info().Int("games", n).Msg("Config reloaded via IPC")
	if s.reloads != nil {
		select {
		case s.reloads <- config.ReloadEvent{Kind: config.SettingsChanged, Games: n}:
		default:
		}
	}

	return fmt.Sprintf("OK RELOADED %d\n", n)
}

// mutateGames persists a whitelist change. The verb names the command in
// both acknowledgement and failure lines.
func (s *Server) mutateGames(verb, pkg string, fn func(*config.GameList) error) string {
	err := s.shared.Config.MutateGames(fn)
	switch {
	case err == nil:
		s.log.Info().Str("package", pkg).Str("op", verb).Msg("Game list updated")
		return fmt.Sprintf("OK %s %s\n", verb, pkg)
	case errors.HasCode(err, errors.ErrLockPoisoned):
		return lockPoisoned
	case errors.HasCode(err, errors.ErrSaveConfig):
		s.log.Error().Err(err).Str("op", verb).Msg("Saving game list failed")
		return errLine(fmt.Errorf("SAVE_GAMELIST %w", err))
	default:
		return errLine(fmt.Errorf("%s %w", verb, err))
	}
}

func (s *Server) listPackages(ctx context.Context) string {
	if s.packages == nil {
		return "ERR LIST_PACKAGES package manager unavailable\n"
	}

	out, err := s.packages.ListPackages(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Listing packages failed")
		return errLine(fmt.Errorf("LIST_PACKAGES %w", err))
	}

	return out + "\n"
}

func (s *Server) gameList() string {
	games, err := s.shared.Config.Games()
	if err != nil {
		return lockPoisoned
	}

	list := games.Clone().Games
	data, err := json.Marshal(list)
	if err != nil {
		return errLine(fmt.Errorf("GET_GAMELIST %w", err))
	}

	return string(data) + "\n"
}

// supportedRates lists the display modes rounded to whole Hz, sorted and
// without duplicates
func (s *Server) supportedRates(ctx context.Context) string {
	if s.shared.Rates == nil {
		return "[]\n"
	}

	modes, err := s.shared.Rates.Get(ctx)
	if err != nil {
		return errLine(fmt.Errorf("GET_SUPPORTED_RATES %w", err))
	}

	seen := make(map[uint32]struct{}, len(modes))
	rates := make([]uint32, 0, len(modes))
	for _, m := range modes {
		hz := uint32(math.Round(m))
		if _, dup := seen[hz]; dup || hz == 0 {
			continue
		}
		seen[hz] = struct{}{}
		rates = append(rates, hz)
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })

	data, err := json.Marshal(rates)
	if err != nil {
		return errLine(fmt.Errorf("GET_SUPPORTED_RATES %w", err))
	}

	return string(data) + "\n"
}

// restartDaemon hands off to the service script and shuts down. Nothing
// is written back on success: the connection just closes.
func (s *Server) restartDaemon() (string, bool) {
	s.log.Info().Msg("Restart requested via IPC")

	if err := s.restart(s.cfg.LogFile, s.cfg.ServiceScript); err != nil {
		s.log.Error().Err(err).Msg("Restart spawn failed")
		return "ERR RESTART_FAILED\n", false
	}

	s.log.Debug().Msg("Restart spawned, daemon exiting")
	s.shutdown()

	return "", true
}

// spawnRestart truncates the log and starts the service script in its own
// session after a short delay, so it outlives this process.
func spawnRestart(logFile, script string) error {
	if logFile != "" {
		_ = os.Truncate(logFile, 0)
	}

	cmd := exec.Command("sh", "-c", "sleep 2 && sh "+script)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}

	return cmd.Process.Release()
}
