package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default settings file name inside the stencil home
	ConfigFileName = "stencil.yaml"
	// EnvPrefix prefixes every environment override (STENCIL_TIMEOUTS_STARTUP, ...)
	EnvPrefix = "STENCIL"
	// StartupTimeoutEnv overrides timeouts.startup, including the CI default.
	StartupTimeoutEnv = "STENCIL_STARTUP_TIMEOUT"
)

// Loader handles loading and parsing of stencil settings.
// Precedence: environment, then file, then defaults.
type Loader struct {
	path     string
	explicit bool
	viper    *viper.Viper
}

// NewLoader creates a loader for an explicit settings file path.
// An empty path resolves to $STENCIL_HOME/stencil.yaml, which may be absent.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path, explicit: path != "", viper: viper.New()}
	if l.path == "" {
		home, err := StencilHome()
		if err != nil {
			return nil, fmt.Errorf("failed to determine stencil home: %w", err)
		}
		l.path = filepath.Join(home, ConfigFileName)
	}
	return l, nil
}

// ConfigPath returns the full path to the settings file
func (l *Loader) ConfigPath() string {
	return l.path
}

// Exists checks if the settings file exists
func (l *Loader) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Load reads the settings file (if any), applies environment overrides and validates the result.
func (l *Loader) Load() (*Settings, error) {
	v := l.viper
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// STENCIL_STARTUP_TIMEOUT is the short spelling documented for CI.
	if err := v.BindEnv("timeouts.startup", EnvPrefix+"_TIMEOUTS_STARTUP", StartupTimeoutEnv); err != nil {
		return nil, err
	}

	setDefaults(v, DefaultSettings())

	switch {
	case l.Exists():
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	case l.explicit:
		return nil, &ConfigNotFoundError{Path: l.path}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("catalog_dir", d.CatalogDir)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("go_binary", d.GoBinary)
	v.SetDefault("host", d.Host)
	v.SetDefault("build.cache", d.Build.Cache)
	v.SetDefault("build.cache_dir", d.Build.CacheDir)
	v.SetDefault("ports.min", d.Ports.Min)
	v.SetDefault("ports.max", d.Ports.Max)
	v.SetDefault("ports.bind_retries", d.Ports.BindRetries)
	v.SetDefault("ports.lock_dir", d.Ports.LockDir)
	v.SetDefault("timeouts.build", d.Timeouts.Build)
	v.SetDefault("timeouts.startup", d.Timeouts.Startup)
	v.SetDefault("timeouts.request", d.Timeouts.Request)
	v.SetDefault("timeouts.shutdown_grace", d.Timeouts.ShutdownGrace)
	v.SetDefault("ready.poll_interval", d.Ready.PollInterval)
	v.SetDefault("logging.file_enabled", *d.Logging.FileEnabled)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("verify.parallel", d.Verify.Parallel)
}

// Load is a convenience wrapper for NewLoader(path).Load().
func Load(path string) (*Settings, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// ConfigNotFoundError is returned when an explicitly requested settings file doesn't exist
type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("configuration file not found: %s", e.Path)
}

// IsConfigNotFound returns true if the error is a ConfigNotFoundError
func IsConfigNotFound(err error) bool {
	var target *ConfigNotFoundError
	return errors.As(err, &target)
}
