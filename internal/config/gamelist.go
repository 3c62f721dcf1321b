package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pelletier/go-toml/v2"
)

const (
	GameListFile = "gamelist.toml"

	DefaultTargetFPS = 60
	MaxTargetFPS     = 1000
)

// ValidTargetFPS reports whether n is an accepted frame-rate target
func ValidTargetFPS(n uint32) bool {
	return n > 0 && n <= MaxTargetFPS
}

// TargetFPS is the candidate set of frame-rate targets for a game.
// A single value is written to TOML and JSON as a bare integer.
type TargetFPS []uint32

// Candidates returns the sorted, de-duplicated set, or [60] when empty.
func (t TargetFPS) Candidates() []uint32 {
	if len(t) == 0 {
		return []uint32{DefaultTargetFPS}
	}

	out := make([]uint32, 0, len(t))
	seen := make(map[uint32]struct{}, len(t))
	for _, v := range t {
		if v == 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return []uint32{DefaultTargetFPS}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func (t TargetFPS) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}

	return json.Marshal([]uint32(t))
}

func (t TargetFPS) encode() any {
	switch len(t) {
	case 0:
		return nil
	case 1:
		return t[0]
	default:
		return []uint32(t)
	}
}

func decodeTargetFPS(raw any) (TargetFPS, error) {
	toFPS := func(v any) (uint32, error) {
		n, ok := v.(int64)
		if !ok || n <= 0 || n > MaxTargetFPS {
			return 0, fmt.Errorf("invalid target_fps value %v", v)
		}
		return uint32(n), nil
	}

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make(TargetFPS, 0, len(v))
		for _, item := range v {
			n, err := toFPS(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		n, err := toFPS(v)
		if err != nil {
			return nil, err
		}
		return TargetFPS{n}, nil
	}
}

// GameProfile is one managed package
type GameProfile struct {
	Package     string    `json:"package"`
	CPUGovernor string    `json:"cpu_governor"`
	EnableDND   bool      `json:"enable_dnd"`
	TargetFPS   TargetFPS `json:"target_fps,omitempty"`
	RefreshRate uint32    `json:"refresh_rate,omitempty"`
	Mode        string    `json:"mode,omitempty"`
}

// GameUpdate carries the fields UPDATE_GAME may change; nil fields are left alone.
type GameUpdate struct {
	Governor    *string
	DND         *bool
	TargetFPS   *uint32
	FPSArray    []uint32
	RefreshRate *uint32
	Mode        *string
}

type gameEntry struct {
	Package     string `toml:"package"`
	CPUGovernor string `toml:"cpu_governor,omitempty"`
	EnableDND   *bool  `toml:"enable_dnd,omitempty"`
	TargetFPS   any    `toml:"target_fps,omitempty"`
	RefreshRate uint32 `toml:"refresh_rate,omitempty"`
	Mode        string `toml:"mode,omitempty"`
}

type gameListFile struct {
	Game []gameEntry `toml:"game"`
}

// GameList is the whitelist of managed packages. Values held by a Store
// are treated as immutable; mutate a Clone.
type GameList struct {
	Games []GameProfile
}

// LoadGameList reads and validates a gamelist.toml
func LoadGameList(path string) (*GameList, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errFactory.Wrap(errors.ErrMissingConfig, err)
		}
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return ParseGameList(data)
}

// ParseGameList decodes gamelist TOML
func ParseGameList(data []byte) (*GameList, error) {
	errFactory := errors.New()

	var file gameListFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	gl := &GameList{Games: make([]GameProfile, 0, len(file.Game))}
	seen := make(map[string]struct{}, len(file.Game))
	for _, e := range file.Game {
		if e.Package == "" {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, &ValidationError{
				Field: "game.package", Value: "", Reason: "must not be empty",
			})
		}
		if _, dup := seen[e.Package]; dup {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, &ValidationError{
				Field: "game.package", Value: e.Package, Reason: "duplicate entry",
			})
		}
		seen[e.Package] = struct{}{}

		fps, err := decodeTargetFPS(e.TargetFPS)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, &ValidationError{
				Field: "game.target_fps", Value: e.TargetFPS, Reason: err.Error(),
			})
		}

		dnd := true
		if e.EnableDND != nil {
			dnd = *e.EnableDND
		}

		gl.Games = append(gl.Games, GameProfile{
			Package:     e.Package,
			CPUGovernor: e.CPUGovernor,
			EnableDND:   dnd,
			TargetFPS:   fps,
			RefreshRate: e.RefreshRate,
			Mode:        e.Mode,
		})
	}

	return gl, nil
}

// Marshal encodes the list as gamelist TOML
func (g *GameList) Marshal() ([]byte, error) {
	file := gameListFile{Game: make([]gameEntry, 0, len(g.Games))}
	for _, p := range g.Games {
		dnd := p.EnableDND
		file.Game = append(file.Game, gameEntry{
			Package:     p.Package,
			CPUGovernor: p.CPUGovernor,
			EnableDND:   &dnd,
			TargetFPS:   p.TargetFPS.encode(),
			RefreshRate: p.RefreshRate,
			Mode:        p.Mode,
		})
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(file); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Validate applies the load-time rules, so a saved list always loads again
func (g *GameList) Validate() error {
	errFactory := errors.New()

	seen := make(map[string]struct{}, g.Len())
	for _, p := range g.Games {
		if p.Package == "" {
			return errFactory.Wrap(errors.ErrInvalidConfig, &ValidationError{
				Field: "game.package", Value: "", Reason: "must not be empty",
			})
		}
		if _, dup := seen[p.Package]; dup {
			return errFactory.Wrap(errors.ErrInvalidConfig, &ValidationError{
				Field: "game.package", Value: p.Package, Reason: "duplicate entry",
			})
		}
		seen[p.Package] = struct{}{}

		for _, fps := range p.TargetFPS {
			if !ValidTargetFPS(fps) {
				return errFactory.Wrap(errors.ErrInvalidConfig, &ValidationError{
					Field: "game.target_fps", Value: fps, Reason: fmt.Sprintf("must be 1..%d", MaxTargetFPS),
				})
			}
		}
	}

	return nil
}

// Save validates the list, writes it next to path and renames it into place.
// An invalid list is never written.
func (g *GameList) Save(path string) error {
	errFactory := errors.New()

	if err := g.Validate(); err != nil {
		return err
	}

	data, err := g.Marshal()
	if err != nil {
		return errFactory.Wrap(errors.ErrSaveConfig, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrSaveConfig, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errFactory.Wrap(errors.ErrSaveConfig, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errFactory.Wrap(errors.ErrSaveConfig, err)
	}

	return nil
}

func (g *GameList) Len() int {
	if g == nil {
		return 0
	}

	return len(g.Games)
}

func (g *GameList) Find(pkg string) (GameProfile, bool) {
	if g == nil {
		return GameProfile{}, false
	}
	for _, p := range g.Games {
		if p.Package == pkg {
			return p, true
		}
	}

	return GameProfile{}, false
}

func (g *GameList) Contains(pkg string) bool {
	_, ok := g.Find(pkg)
	return ok
}

// Packages returns the managed package names in file order
func (g *GameList) Packages() []string {
	out := make([]string, 0, g.Len())
	if g == nil {
		return out
	}
	for _, p := range g.Games {
		out = append(out, p.Package)
	}

	return out
}

// Clone returns a deep copy
func (g *GameList) Clone() *GameList {
	out := &GameList{Games: make([]GameProfile, 0, g.Len())}
	if g == nil {
		return out
	}
	for _, p := range g.Games {
		p.TargetFPS = append(TargetFPS(nil), p.TargetFPS...)
		out.Games = append(out.Games, p)
	}

	return out
}

func (g *GameList) Add(p GameProfile) error {
	if p.Package == "" {
		return errors.New().WithMessage(errors.ErrInvalidArgument, "package must not be empty")
	}
	if g.Contains(p.Package) {
		return errors.New().WithData(errors.ErrAlreadyExists, p.Package)
	}
	g.Games = append(g.Games, p)

	return nil
}

func (g *GameList) Remove(pkg string) error {
	for i, p := range g.Games {
		if p.Package == pkg {
			g.Games = append(g.Games[:i], g.Games[i+1:]...)
			return nil
		}
	}

	return errors.New().WithData(errors.ErrResourceNotFound, pkg)
}

func checkFPS(u GameUpdate) error {
	if u.TargetFPS != nil && !ValidTargetFPS(*u.TargetFPS) {
		return errors.New().WithMessage(errors.ErrInvalidArgument,
			fmt.Sprintf("target fps %d out of range 1..%d", *u.TargetFPS, MaxTargetFPS))
	}
	for _, v := range u.FPSArray {
		if !ValidTargetFPS(v) {
			return errors.New().WithMessage(errors.ErrInvalidArgument,
				fmt.Sprintf("target fps %d out of range 1..%d", v, MaxTargetFPS))
		}
	}

	return nil
}

// Update applies u to pkg. FPSArray wins over TargetFPS when both are set.
func (g *GameList) Update(pkg string, u GameUpdate) error {
	for i := range g.Games {
		p := &g.Games[i]
		if p.Package != pkg {
			continue
		}

		if err := checkFPS(u); err != nil {
			return err
		}
		if u.Governor != nil {
			p.CPUGovernor = *u.Governor
		}
		if u.DND != nil {
			p.EnableDND = *u.DND
		}
		switch {
		case len(u.FPSArray) > 0:
			p.TargetFPS = append(TargetFPS(nil), u.FPSArray...)
		case u.TargetFPS != nil:
			p.TargetFPS = TargetFPS{*u.TargetFPS}
		}
		if u.RefreshRate != nil {
			p.RefreshRate = *u.RefreshRate
		}
		if u.Mode != nil {
			p.Mode = *u.Mode
		}

		return nil
	}

	return errors.New().WithData(errors.ErrResourceNotFound, pkg)
}

// NewGameProfile returns the profile ADD_GAME creates
func NewGameProfile(pkg string) GameProfile {
	return GameProfile{
		Package:     pkg,
		CPUGovernor: "performance",
		EnableDND:   true,
		Mode:        "performance",
	}
}
