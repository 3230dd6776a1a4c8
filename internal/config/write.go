package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// WriteDefault writes the default settings to path as YAML.
// It refuses to overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return withFileLock(path, func() error {
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("config file already exists: %s", path)
		}

		encoded, err := yaml.Marshal(defaultDocument(DefaultSettings()))
		if err != nil {
			return fmt.Errorf("encoding config %s: %w", path, err)
		}
		return atomicWriteFile(path, encoded, 0o644)
	})
}

// defaultDocument renders settings with durations as strings so the file
// round-trips through the duration decode hook.
func defaultDocument(s *Settings) map[string]any {
	return map[string]any{
		"go_binary": s.GoBinary,
		"host":      s.Host,
		"work_dir":  s.WorkDir,
		"build": map[string]any{
			"cache": s.Build.Cache,
		},
		"ports": map[string]any{
			"min":          s.Ports.Min,
			"max":          s.Ports.Max,
			"bind_retries": s.Ports.BindRetries,
		},
		"timeouts": map[string]any{
			"build":          s.Timeouts.Build.String(),
			"startup":        s.Timeouts.Startup.String(),
			"request":        s.Timeouts.Request.String(),
			"shutdown_grace": s.Timeouts.ShutdownGrace.String(),
		},
		"ready": map[string]any{
			"poll_interval": s.Ready.PollInterval.String(),
		},
		"logging": map[string]any{
			"file_enabled": *s.Logging.FileEnabled,
			"max_size_mb":  s.Logging.MaxSizeMB,
			"max_age_days": s.Logging.MaxAgeDays,
			"max_backups":  s.Logging.MaxBackups,
		},
		"verify": map[string]any{
			"parallel": s.Verify.Parallel,
		},
	}
}

// atomicWriteFile writes data to a temp file in the same directory and renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".stencil-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return fmt.Errorf("setting permissions on temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}

	success = true
	return nil
}

// withFileLock acquires an advisory file lock on path+".lock" before running fn,
// providing cross-process mutual exclusion for config file writes.
func withFileLock(path string, fn func() error) error {
	fl := flock.New(path + ".lock")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring file lock for %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("timed out acquiring file lock for %s", path)
	}
	defer func() { _ = fl.Unlock() }()

	return fn()
}
