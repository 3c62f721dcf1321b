package config

import (
	"strings"

	"github.com/pavelc4/auriya/internal/errors"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigDir     = "/data/adb/.config/auriya"
	DefaultSocketPath    = "/dev/socket/auriya.sock"
	DefaultLogFile       = "/data/adb/auriya/daemon.log"
	DefaultPIDDir        = "/data/adb/auriya"
	DefaultServiceScript = "/data/adb/modules/auriya/service.sh"
	DefaultMetricsDB     = "/data/adb/auriya/metrics.db"
	DefaultEnvPrefix     = "AURIYA"
)

// Options are the process-level settings taken from flags and the environment.
type Options struct {
	ConfigDir     string `mapstructure:"config-dir"`
	Socket        string `mapstructure:"socket"`
	LogLevel      string `mapstructure:"log-level"`
	LogFile       string `mapstructure:"log-file"`
	PIDDir        string `mapstructure:"pid-dir"`
	ServiceScript string `mapstructure:"service-script"`
	Metrics       bool   `mapstructure:"metrics"`
	MetricsDB     string `mapstructure:"metrics-db"`
	Debug         bool   `mapstructure:"debug"`
}

// LoadOptions parses args and overlays AURIYA_* environment variables.
// Explicit flags win over the environment.
func LoadOptions(args []string, opts ...Option) (*Options, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	fs := flag.NewFlagSet("auriya", flag.ContinueOnError)
	fs.String("config-dir", DefaultConfigDir, "Directory holding settings.toml and gamelist.toml")
	fs.String("socket", DefaultSocketPath, "Path of the admin unix socket")
	fs.String("log-level", "", "Log level override (debug, info, warn, error)")
	fs.String("log-file", DefaultLogFile, "Append log lines to this file (empty disables)")
	fs.String("pid-dir", DefaultPIDDir, "Directory for the pid file")
	fs.String("service-script", DefaultServiceScript, "Script spawned by RESTART")
	fs.Bool("metrics", false, "Record tick decisions to sqlite")
	fs.String("metrics-db", DefaultMetricsDB, "Path of the metrics database")
	fs.Bool("debug", false, "Shorthand for --log-level=debug")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	cfg := &Options{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.ConfigDir == "" {
		return nil, errFactory.WithData(errors.ErrMissingConfig, "config-dir")
	}

	return cfg, nil
}
