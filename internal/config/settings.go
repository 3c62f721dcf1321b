package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/pavelc4/auriya/internal/errors"
	"github.com/spf13/viper"
)

const (
	SettingsFile = "settings.toml"

	suspendedFactor = 3
)

// Settings mirrors settings.toml
type Settings struct {
	Daemon DaemonSettings          `mapstructure:"daemon"`
	CPU    CPUSettings             `mapstructure:"cpu"`
	DND    DNDSettings             `mapstructure:"dnd"`
	FAS    FASSettings             `mapstructure:"fas"`
	Modes  map[string]ModeSettings `mapstructure:"modes"`
}

type DaemonSettings struct {
	LogLevel        string `mapstructure:"log_level"`
	CheckIntervalMs int    `mapstructure:"check_interval_ms"`
}

type CPUSettings struct {
	DefaultGovernor string `mapstructure:"default_governor"`
}

type DNDSettings struct {
	DefaultEnable bool `mapstructure:"default_enable"`
}

type FASSettings struct {
	Enabled          bool    `mapstructure:"enabled"`
	DefaultMode      string  `mapstructure:"default_mode"`
	ThermalThreshold float64 `mapstructure:"thermal_threshold"`
	PollIntervalMs   int     `mapstructure:"poll_interval_ms"`
}

// ModeSettings overrides FAS thresholds while a game runs in that mode
type ModeSettings struct {
	ThermalThreshold float64 `mapstructure:"thermal_threshold"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("daemon.log_level", "info")
	v.SetDefault("daemon.check_interval_ms", 2000)
	v.SetDefault("cpu.default_governor", "schedutil")
	v.SetDefault("dnd.default_enable", true)
	v.SetDefault("fas.enabled", true)
	v.SetDefault("fas.default_mode", "balance")
	v.SetDefault("fas.thermal_threshold", 90.0)
	v.SetDefault("fas.poll_interval_ms", 500)
}

// DefaultSettings returns the settings used when settings.toml is absent
func DefaultSettings() Settings {
	v := viper.New()
	setDefaults(v)

	var s Settings
	_ = v.Unmarshal(&s)

	return s
}

// LoadSettings reads path. A missing file yields DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// Validate checks ranges that would stall or spin the control loop
func (s Settings) Validate() error {
	errFactory := errors.New()

	if s.Daemon.CheckIntervalMs <= 0 {
		return errFactory.Wrap(errors.ErrInvalidInterval, &ValidationError{
			Field: "daemon.check_interval_ms", Value: s.Daemon.CheckIntervalMs, Reason: "must be positive",
		})
	}
	if s.FAS.PollIntervalMs <= 0 {
		return errFactory.Wrap(errors.ErrInvalidInterval, &ValidationError{
			Field: "fas.poll_interval_ms", Value: s.FAS.PollIntervalMs, Reason: "must be positive",
		})
	}
	if s.FAS.ThermalThreshold <= 0 {
		return errFactory.Wrap(errors.ErrInvalidConfig, &ValidationError{
			Field: "fas.thermal_threshold", Value: s.FAS.ThermalThreshold, Reason: "must be positive",
		})
	}
	switch strings.ToLower(s.Daemon.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errFactory.Wrap(errors.ErrInvalidLogLevel, &ValidationError{
			Field: "daemon.log_level", Value: s.Daemon.LogLevel, Reason: "unknown level",
		})
	}

	return nil
}

func (s Settings) IdleInterval() time.Duration {
	return time.Duration(s.Daemon.CheckIntervalMs) * time.Millisecond
}

func (s Settings) ActiveInterval() time.Duration {
	return time.Duration(s.FAS.PollIntervalMs) * time.Millisecond
}

func (s Settings) SuspendedInterval() time.Duration {
	return s.IdleInterval() * suspendedFactor
}

// ThermalThresholdFor returns the per-mode threshold if one is configured
func (s Settings) ThermalThresholdFor(mode string) float64 {
	if m, ok := s.Modes[strings.ToLower(mode)]; ok && m.ThermalThreshold > 0 {
		return m.ThermalThreshold
	}

	return s.FAS.ThermalThreshold
}
