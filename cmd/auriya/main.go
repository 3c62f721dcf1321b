package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pavelc4/auriya/internal/command"
	"github.com/pavelc4/auriya/internal/config"
	"github.com/pavelc4/auriya/internal/cpu"
	"github.com/pavelc4/auriya/internal/daemon"
	"github.com/pavelc4/auriya/internal/errors"
	"github.com/pavelc4/auriya/internal/fas"
	"github.com/pavelc4/auriya/internal/ipc"
	"github.com/pavelc4/auriya/internal/logger"
	"github.com/pavelc4/auriya/internal/metrics"
	"github.com/pavelc4/auriya/internal/pid"
	"github.com/pavelc4/auriya/internal/profile"
	"github.com/pavelc4/auriya/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	sysRoot  = "/sys"
	procRoot = "/proc"

	reloadQueue = 8
)

func main() {
	opts, err := config.LoadOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse options: %v\n", err)
		os.Exit(2)
	}

	store, err := config.NewStore(opts.ConfigDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config from %s: %v\n", opts.ConfigDir, err)
		os.Exit(1)
	}

	if err := initLogger(opts, store); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	pidFile := pid.New(opts.PIDDir)
	if err := pidFile.Write(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Str("pid_file", pidFile.Path()).Msg("Refusing to start")
		}
		logger.Fatal().Err(err).Msg("Refusing to start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = run(ctx, opts, store)
	if rmErr := pidFile.Remove(); rmErr != nil {
		logger.Warn().Err(rmErr).Msg("Failed to remove pid file")
	}
	if err != nil {
		logger.Error().Err(err).Msg("Daemon stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

// initLogger picks the level from the command line, then settings.toml
func initLogger(opts *config.Options, store *config.Store) error {
	levelName := opts.LogLevel
	if levelName == "" {
		if s, err := store.Settings(); err == nil {
			levelName = s.Daemon.LogLevel
		}
	}

	level, err := logger.ParseLevel(levelName)
	if err != nil {
		level = logger.InfoLevel
	}

	if err := logger.Init(logger.Options{
		Level:   level,
		Service: logger.IsService(),
		File:    opts.LogFile,
	}); err != nil {
		return err
	}

	logger.Debug().Str("config_dir", opts.ConfigDir).Str("level", level.String()).Msg("Config loaded")

	return nil
}

func run(ctx context.Context, opts *config.Options, store *config.Store) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exec := command.Exec{}

	topo := cpu.Detect(sysRoot)
	logger.Info().
		Bool("known", topo.Known).
		Str("little", topo.Little.String()).
		Str("big", topo.Big.String()).
		Str("prime", topo.Prime.String()).
		Msg("CPU topology")

	vendor := profile.DetectVendor(ctx, exec, sysRoot, procRoot)
	logger.Info().Str("vendor", vendor).Msg("SoC vendor")

	applier := profile.NewSysfsApplier(sysRoot, exec, profile.NewTweaker(vendor, sysRoot, procRoot), topo,
		profile.WithAffinityFunc(cpu.SetAffinity))

	android := telemetry.NewAndroid(exec, telemetry.DefaultConfig())
	fasCtl := fas.NewController(android, android)
	shared := daemon.NewShared(store, fasCtl, daemon.NewRateCache(android))

	mcfg := metrics.DefaultConfig()
	mcfg.Enabled = opts.Metrics
	mcfg.DBPath = opts.MetricsDB
	recorder, err := metrics.NewService(mcfg, logger.With("metrics"))
	if err != nil {
		logger.Warn().Err(err).Msg("Metrics disabled")
		recorder = metrics.Noop()
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close metrics")
		}
	}()

	engine := daemon.NewEngine(shared, android, applier,
		daemon.WithDisplay(profile.NewDisplay(exec)),
		daemon.WithRecorder(recorder),
	)

	watcher := config.NewWatcher(store)
	reloads := make(chan config.ReloadEvent, reloadQueue)

	server := ipc.NewServer(ipc.Config{
		SocketPath:    opts.Socket,
		LogFile:       opts.LogFile,
		ServiceScript: opts.ServiceScript,
	}, shared, engine, android,
		ipc.WithShutdown(cancel),
		ipc.WithReloadNotify(reloads),
	)
	if err := server.Listen(); err != nil {
		return err
	}

	games, _ := store.Games()
	logger.Info().Int("games", games.Len()).Str("socket", opts.Socket).Msg("Auriya started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx, reloads)
	})
	g.Go(func() error {
		return server.Serve(ctx)
	})
	g.Go(func() error {
		// without a watcher the daemon still runs; RELOAD covers the gap
		if err := watcher.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("Config watcher stopped")
		}
		return nil
	})
	g.Go(func() error {
		forward(ctx, watcher.Events(), reloads)
		return nil
	})

	return g.Wait()
}

// forward merges file watcher events into the engine's reload queue
func forward(ctx context.Context, in <-chan config.ReloadEvent, out chan<- config.ReloadEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
