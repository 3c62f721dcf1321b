package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/logger"
)

const (
	defaultReloadRetries = 3
	defaultRetryDelay    = 2 * time.Second
	defaultQueueSize     = 10
)

type ReloadKind int

const (
	GameListChanged ReloadKind = iota
	SettingsChanged
)

func (k ReloadKind) String() string {
	if k == SettingsChanged {
		return "settings"
	}

	return "gamelist"
}

// ReloadEvent is emitted after a changed file was reloaded successfully
type ReloadEvent struct {
	Kind  ReloadKind
	Games int
}

// Watcher reloads the Store when its files change on disk
type Watcher struct {
	store      *Store
	events     chan ReloadEvent
	retries    int
	retryDelay time.Duration
	queueSize  int
	log        logger.Logger
}

func NewWatcher(store *Store, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:      store,
		retries:    defaultReloadRetries,
		retryDelay: defaultRetryDelay,
		queueSize:  defaultQueueSize,
		log:        logger.With("config"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.events = make(chan ReloadEvent, w.queueSize)

	return w
}

// Events delivers reload notifications. Events are dropped when nobody drains it.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Run watches the config directory until ctx is done. Editors replace files
// by rename, so the directory is watched rather than the files themselves.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New().Wrap(errors.ErrWatchConfig, err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.store.Dir()); err != nil {
		return errors.New().Wrap(errors.ErrWatchConfig, err)
	}

	w.log.Info().Str("dir", w.store.Dir()).Msg("Watching configuration")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("Config watcher error")
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			switch filepath.Base(ev.Name) {
			case GameListFile:
				w.reload(ctx, GameListChanged)
			case SettingsFile:
				w.reload(ctx, SettingsChanged)
			}
		}
	}
}

func (w *Watcher) reload(ctx context.Context, kind ReloadKind) {
	var lastErr error
	for attempt := 1; attempt <= w.retries; attempt++ {
		var (
			games int
			err   error
		)
		if kind == SettingsChanged {
			err = w.store.ReloadSettings()
			if err == nil {
				g, _ := w.store.Games()
				games = g.Len()
			}
		} else {
			games, err = w.store.ReloadGames()
		}

		if err == nil {
			w.log.Info().Str("kind", kind.String()).Int("games", games).Msg("Configuration reloaded")
			w.emit(ReloadEvent{Kind: kind, Games: games})
			return
		}

		lastErr = err
		w.log.Debug().Err(err).Int("attempt", attempt).Str("kind", kind.String()).Msg("Reload failed")

		if attempt < w.retries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.retryDelay):
			}
		}
	}

	w.log.Error().Err(lastErr).Str("kind", kind.String()).Msg("Giving up reload, keeping previous configuration")
}

func (w *Watcher) emit(ev ReloadEvent) {
	select {
	case w.events <- ev:
	default:
		w.log.Debug().Str("kind", ev.Kind.String()).Msg("Reload queue full, dropping event")
	}
}
