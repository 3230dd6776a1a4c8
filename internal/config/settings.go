package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schmitthub/stencil/internal/logger"
)

const (
	// DefaultStartupTimeout bounds the readiness wait for a launched instance.
	DefaultStartupTimeout = 60 * time.Second
	// CIStartupTimeout is used when running under CI, where builds are slower.
	CIStartupTimeout = 180 * time.Second
)

// Settings is the full runtime configuration for stencil.
type Settings struct {
	// CatalogDir overrides the embedded template catalog with an on-disk one.
	CatalogDir string `mapstructure:"catalog_dir"`
	// WorkDir is the parent directory for materialized projects.
	WorkDir string `mapstructure:"work_dir"`
	// GoBinary is the toolchain used by template build commands.
	GoBinary string `mapstructure:"go_binary"`
	// Host is the loopback host instances are addressed by.
	Host string `mapstructure:"host"`

	Build    BuildSettings   `mapstructure:"build"`
	Ports    PortSettings    `mapstructure:"ports"`
	Timeouts TimeoutSettings `mapstructure:"timeouts"`
	Ready    ReadySettings   `mapstructure:"ready"`
	Logging  LoggingSettings `mapstructure:"logging"`
	Verify   VerifySettings  `mapstructure:"verify"`
}

// BuildSettings controls the build step.
type BuildSettings struct {
	Cache    bool   `mapstructure:"cache"`
	CacheDir string `mapstructure:"cache_dir"`
}

// PortSettings controls port reservation for launched instances.
type PortSettings struct {
	Min         int    `mapstructure:"min"`
	Max         int    `mapstructure:"max"`
	BindRetries int    `mapstructure:"bind_retries"`
	LockDir     string `mapstructure:"lock_dir"`
}

// TimeoutSettings bounds every blocking step.
type TimeoutSettings struct {
	Build         time.Duration `mapstructure:"build"`
	Startup       time.Duration `mapstructure:"startup"`
	Request       time.Duration `mapstructure:"request"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// ReadySettings controls the readiness handshake.
type ReadySettings struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LoggingSettings controls file logging.
type LoggingSettings struct {
	FileEnabled *bool `mapstructure:"file_enabled"`
	MaxSizeMB   int   `mapstructure:"max_size_mb"`
	MaxAgeDays  int   `mapstructure:"max_age_days"`
	MaxBackups  int   `mapstructure:"max_backups"`
}

// VerifySettings controls the contract verification run.
type VerifySettings struct {
	Parallel int `mapstructure:"parallel"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() *Settings {
	fileEnabled := true
	return &Settings{
		WorkDir:  DefaultWorkRoot(),
		GoBinary: "go",
		Host:     "localhost",
		Build: BuildSettings{
			Cache: true,
		},
		Ports: PortSettings{
			Min:         20000,
			Max:         29999,
			BindRetries: 3,
		},
		Timeouts: TimeoutSettings{
			Build:         5 * time.Minute,
			Startup:       defaultStartupTimeout(),
			Request:       30 * time.Second,
			ShutdownGrace: 5 * time.Second,
		},
		Ready: ReadySettings{
			PollInterval: 100 * time.Millisecond,
		},
		Logging: LoggingSettings{
			FileEnabled: &fileEnabled,
			MaxSizeMB:   50,
			MaxAgeDays:  7,
			MaxBackups:  3,
		},
		Verify: VerifySettings{
			Parallel: 2,
		},
	}
}

// IsCI reports whether the process runs under a CI system.
func IsCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}

func defaultStartupTimeout() time.Duration {
	if IsCI() {
		return CIStartupTimeout
	}
	return DefaultStartupTimeout
}

// Validate checks settings for values no component can work with.
func (s *Settings) Validate() error {
	var errs []error
	if s.Ports.Min <= 0 || s.Ports.Max > 65535 || s.Ports.Min > s.Ports.Max {
		errs = append(errs, fmt.Errorf("invalid port range [%d-%d]", s.Ports.Min, s.Ports.Max))
	}
	if s.Ports.BindRetries < 1 {
		errs = append(errs, fmt.Errorf("ports.bind_retries must be at least 1, got %d", s.Ports.BindRetries))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.build":          s.Timeouts.Build,
		"timeouts.startup":        s.Timeouts.Startup,
		"timeouts.request":        s.Timeouts.Request,
		"timeouts.shutdown_grace": s.Timeouts.ShutdownGrace,
		"ready.poll_interval":     s.Ready.PollInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if s.GoBinary == "" {
		errs = append(errs, errors.New("go_binary must not be empty"))
	}
	if s.WorkDir == "" {
		errs = append(errs, errors.New("work_dir must not be empty"))
	}
	return errors.Join(errs...)
}

// LoggerConfig converts logging settings for the logger package.
func (s *Settings) LoggerConfig() *logger.LoggingConfig {
	return &logger.LoggingConfig{
		FileEnabled: s.Logging.FileEnabled,
		MaxSizeMB:   s.Logging.MaxSizeMB,
		MaxAgeDays:  s.Logging.MaxAgeDays,
		MaxBackups:  s.Logging.MaxBackups,
	}
}

// ResolvedCacheDir returns the build cache directory, defaulting under the stencil home.
func (s *Settings) ResolvedCacheDir() (string, error) {
	if s.Build.CacheDir != "" {
		return s.Build.CacheDir, nil
	}
	return CacheDir()
}

// ResolvedLockDir returns the port lock directory, defaulting under the stencil home.
func (s *Settings) ResolvedLockDir() (string, error) {
	if s.Ports.LockDir != "" {
		return s.Ports.LockDir, nil
	}
	return LocksDir()
}
