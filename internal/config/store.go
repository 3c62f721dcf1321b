package config

import (
	"path/filepath"

	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/shared"
)

// Store holds the live settings and game list. Each is guarded on its
// own so a game list write never blocks a settings read.
type Store struct {
	dir      string
	settings *shared.Guarded[Settings]
	games    *shared.Guarded[*GameList]
}

// NewStore loads both files from dir. A missing game list is fatal;
// missing settings fall back to defaults.
func NewStore(dir string) (*Store, error) {
	s := &Store{dir: dir}

	settings, err := LoadSettings(s.SettingsPath())
	if err != nil {
		return nil, err
	}

	games, err := LoadGameList(s.GameListPath())
	if err != nil {
		return nil, err
	}

	s.settings = shared.NewGuarded(settings)
	s.games = shared.NewGuarded(games)

	return s, nil
}

// NewMemoryStore builds a Store around values without touching dir until
// a mutation is saved.
func NewMemoryStore(dir string, settings Settings, games *GameList) *Store {
	if games == nil {
		games = &GameList{}
	}

	return &Store{
		dir:      dir,
		settings: shared.NewGuarded(settings),
		games:    shared.NewGuarded(games),
	}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) SettingsPath() string {
	return filepath.Join(s.dir, SettingsFile)
}

func (s *Store) GameListPath() string {
	return filepath.Join(s.dir, GameListFile)
}

func (s *Store) Settings() (Settings, error) {
	return s.settings.Load()
}

// Games returns the current snapshot. Callers must not mutate it.
func (s *Store) Games() (*GameList, error) {
	return s.games.Load()
}

// ReloadGames re-reads gamelist.toml, keeping the previous list on failure
func (s *Store) ReloadGames() (int, error) {
	games, err := LoadGameList(s.GameListPath())
	if err != nil {
		return 0, err
	}
	s.games.Store(games)

	return games.Len(), nil
}

// ReloadSettings re-reads settings.toml, keeping the previous settings on failure
func (s *Store) ReloadSettings() error {
	settings, err := LoadSettings(s.SettingsPath())
	if err != nil {
		return err
	}
	s.settings.Store(settings)

	return nil
}

// Reload re-reads both files. Nothing is replaced unless both parse.
func (s *Store) Reload() (int, error) {
	settings, err := LoadSettings(s.SettingsPath())
	if err != nil {
		return 0, err
	}
	games, err := LoadGameList(s.GameListPath())
	if err != nil {
		return 0, err
	}

	s.settings.Store(settings)
	s.games.Store(games)

	return games.Len(), nil
}

// MutateGames applies fn to a copy of the list, persists it, and only
// then publishes it. Save failures carry ErrSaveConfig.
func (s *Store) MutateGames(fn func(*GameList) error) error {
	return s.games.Update(func(cur **GameList) error {
		next := (*cur).Clone()
		if err := fn(next); err != nil {
			return err
		}
		if err := next.Save(s.GameListPath()); err != nil {
			if !errors.HasCode(err, errors.ErrSaveConfig) {
				err = errors.New().Wrap(errors.ErrSaveConfig, err)
			}
			return err
		}
		*cur = next

		return nil
	})
}
