package ipc

import (
	"strconv"
	"strings"

	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
	"github.com/pavelc4/auriya/internal/profile"
)

// MaxLineLength is the longest command line the server will parse
const MaxLineLength = 256

// Command is one parsed protocol line. The set is closed: only the types
// in this file implement it.
type Command interface {
	command()
}

type (
	Help        struct{}
	Status      struct{}
	Enable      struct{}
	Disable     struct{}
	Reload      struct{}
	Restart     struct{}
	GetPID      struct{}
	Ping        struct{}
	Quit        struct{}
	ClearInject struct{}

	ListPackages      struct{}
	GetGameList       struct{}
	GetFPS            struct{}
	GetSupportedRates struct{}

	SetLog struct {
		Level logger.LogLevel
	}
	Inject struct {
		Package string
	}
	SetProfile struct {
		Profile profile.Profile
	}
	AddGame struct {
		Package string
	}
	RemoveGame struct {
		Package string
	}
	SetFPS struct {
		FPS uint32
	}
	UpdateGame struct {
		Package     string
		Governor    *string
		DND         *bool
		TargetFPS   *uint32
		FPSArray    []uint32
		RefreshRate *uint32
		Mode        *string
	}
)

func (Help) command()              {}
func (Status) command()            {}
func (Enable) command()            {}
func (Disable) command()           {}
func (Reload) command()            {}
func (Restart) command()           {}
func (GetPID) command()            {}
func (Ping) command()              {}
func (Quit) command()              {}
func (ClearInject) command()       {}
func (ListPackages) command()      {}
func (GetGameList) command()       {}
func (GetFPS) command()            {}
func (GetSupportedRates) command() {}
func (SetLog) command()            {}
func (Inject) command()            {}
func (SetProfile) command()        {}
func (AddGame) command()           {}
func (RemoveGame) command()        {}
func (SetFPS) command()            {}
func (UpdateGame) command()        {}

const (
	msgUnknown   = "unknown command (try HELP)"
	usageSetLog  = "usage: SETLOG <DEBUG|INFO|WARN|ERROR>"
	usageSetFPS  = "usage: SET_FPS <number>"
	usageProfile = "usage: SETPROFILE <PERFORMANCE|BALANCE|POWERSAVE>"
	usageInject  = "usage: INJECT <pkg>"
	usageAddGame = "usage: ADD_GAME <pkg>"
	usageRemove  = "usage: REMOVE_GAME <pkg>"
	usageUpdate  = "usage: UPDATE_GAME <pkg> [gov=<g>] [dnd=<bool>] [fps=<n>] [fps_array=<a,b>] [rate=<hz>] [mode=<m>]"
	msgFPSRange  = "fps must be between 1 and 1000"
)

var noArgs = map[string]Command{
	"HELP":                Help{},
	"?":                   Help{},
	"STATUS":              Status{},
	"ENABLE":              Enable{},
	"DISABLE":             Disable{},
	"RELOAD":              Reload{},
	"RESTART":             Restart{},
	"GETPID":              GetPID{},
	"GET_PID":             GetPID{},
	"PING":                Ping{},
	"QUIT":                Quit{},
	"CLEAR_INJECT":        ClearInject{},
	"CLEARINJECT":         ClearInject{},
	"LIST_PACKAGES":       ListPackages{},
	"LISTPACKAGES":        ListPackages{},
	"GET_GAMELIST":        GetGameList{},
	"GETGAMELIST":         GetGameList{},
	"GET_FPS":             GetFPS{},
	"GETFPS":              GetFPS{},
	"GET_SUPPORTED_RATES": GetSupportedRates{},
	"GETRATES":            GetSupportedRates{},
}

// Parse turns one line into a Command. The verb is case-insensitive;
// arguments keep their case. Errors carry ErrProtocol and a message fit
// to send back after "ERR ".
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, protocolError(msgUnknown)
	}

	verb, args := strings.ToUpper(fields[0]), fields[1:]

	if cmd, ok := noArgs[verb]; ok {
		if len(args) != 0 {
			return nil, protocolError(msgUnknown)
		}
		return cmd, nil
	}

	switch verb {
	case "SETLOG", "SET_LOG":
		if len(args) != 1 {
			return nil, protocolError(usageSetLog)
		}
		lvl, err := logger.ParseLevel(args[0])
		if err != nil {
			return nil, protocolError(usageSetLog)
		}
		return SetLog{Level: lvl}, nil

	case "SET_FPS", "SETFPS":
		if len(args) != 1 {
			return nil, protocolError(usageSetFPS)
		}
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return nil, protocolError(usageSetFPS)
		}
		return SetFPS{FPS: uint32(n)}, nil

	case "SET_PROFILE", "SETPROFILE":
		if len(args) != 1 {
			return nil, protocolError(usageProfile)
		}
		p, ok := profile.Parse(args[0])
		if !ok {
			return nil, protocolError(usageProfile)
		}
		return SetProfile{Profile: p}, nil

	case "INJECT":
		if len(args) != 1 {
			return nil, protocolError(usageInject)
		}
		return Inject{Package: args[0]}, nil

	case "ADD_GAME", "ADDGAME":
		if len(args) != 1 {
			return nil, protocolError(usageAddGame)
		}
		return AddGame{Package: args[0]}, nil

	case "REMOVE_GAME", "REMOVEGAME":
		if len(args) != 1 {
			return nil, protocolError(usageRemove)
		}
		return RemoveGame{Package: args[0]}, nil

	case "UPDATE_GAME", "UPDATEGAME":
		if len(args) == 0 {
			return nil, protocolError(usageUpdate)
		}
		return parseUpdate(args[0], args[1:])
	}

	return nil, protocolError(msgUnknown)
}

// parseUpdate reads key=value pairs. Unknown keys and unparsable numbers
// are ignored; an unparsable dnd value means true. A frame-rate target
// outside 1..1000 is rejected.
func parseUpdate(pkg string, pairs []string) (Command, error) {
	u := UpdateGame{Package: pkg}

	for _, kv := range pairs {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		switch strings.ToLower(key) {
		case "gov":
			v := val
			u.Governor = &v
		case "dnd":
			b, err := strconv.ParseBool(val)
			if err != nil {
				b = true
			}
			u.DND = &b
		case "fps":
			if n, err := strconv.ParseUint(val, 10, 32); err == nil {
				v := uint32(n)
				if !config.ValidTargetFPS(v) {
					return nil, protocolError(msgFPSRange)
				}
				u.TargetFPS = &v
			}
		case "fps_array":
			var arr []uint32
			for _, s := range strings.Split(val, ",") {
				if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32); err == nil {
					if !config.ValidTargetFPS(uint32(n)) {
						return nil, protocolError(msgFPSRange)
					}
					arr = append(arr, uint32(n))
				}
			}
			if len(arr) > 0 {
				u.FPSArray = arr
			}
		case "rate":
			if n, err := strconv.ParseUint(val, 10, 32); err == nil {
				v := uint32(n)
				u.RefreshRate = &v
			}
		case "mode":
			v := val
			u.Mode = &v
		}
	}

	return u, nil
}

func protocolError(msg string) error {
	return errors.New().WithMessage(errors.ErrProtocol, msg)
}
