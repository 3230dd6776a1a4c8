package config

import (
	"os"
	"path/filepath"
)

const (
	// StencilHomeEnv is the environment variable for the stencil home directory
	StencilHomeEnv = "STENCIL_HOME"
	// DefaultStencilDir is the default directory under the user home
	DefaultStencilDir = ".local/stencil"
	// CacheSubdir holds content-addressed build artifacts
	CacheSubdir = "cache"
	// LocksSubdir holds advisory lock files shared between processes
	LocksSubdir = "locks"
	// LogsSubdir holds rotating log files
	LogsSubdir = "logs"
	// WorkDirName is the directory under the OS temp dir that holds materialized projects
	WorkDirName = "stencil"
)

// StencilHome returns the stencil home directory.
// It checks STENCIL_HOME first, then defaults to ~/.local/stencil.
func StencilHome() (string, error) {
	if home := os.Getenv(StencilHomeEnv); home != "" {
		return home, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultStencilDir), nil
}

func homeSubdir(name string) (string, error) {
	home, err := StencilHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, name), nil
}

// CacheDir returns the build cache directory (~/.local/stencil/cache)
func CacheDir() (string, error) { return homeSubdir(CacheSubdir) }

// LocksDir returns the lock file directory (~/.local/stencil/locks)
func LocksDir() (string, error) { return homeSubdir(LocksSubdir) }

// LogsDir returns the log directory (~/.local/stencil/logs)
func LogsDir() (string, error) { return homeSubdir(LogsSubdir) }

// DefaultWorkRoot returns the parent directory for materialized projects.
func DefaultWorkRoot() string {
	return filepath.Join(os.TempDir(), WorkDirName)
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
