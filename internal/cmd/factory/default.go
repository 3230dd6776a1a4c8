// Package factory wires the real implementations behind cmdutil.Factory.
package factory

import (
	"sync"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/instance"
	"github.com/schmitthub/stencil/internal/iostreams"
	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/supervisor"
)

// New creates a fully-wired Factory with lazy-initialized dependency closures.
// Called once at the CLI entry point (internal/stencil).
// Tests should NOT import this package; construct &cmdutil.Factory{} directly.
func New(version, commit string) *cmdutil.Factory {
	f := &cmdutil.Factory{
		Version:   version,
		Commit:    commit,
		IOStreams: iostreams.System(),
	}

	// Settings are read on first use so --config has been parsed by then.
	var (
		settingsOnce sync.Once
		settings     *config.Settings
		settingsErr  error
	)
	f.Settings = func() (*config.Settings, error) {
		settingsOnce.Do(func() {
			settings, settingsErr = config.Load(f.ConfigPath)
		})
		return settings, settingsErr
	}

	var (
		catalogOnce sync.Once
		cat         *catalog.Catalog
		catalogErr  error
	)
	f.Catalog = func() (*catalog.Catalog, error) {
		catalogOnce.Do(func() {
			s, err := f.Settings()
			if err != nil {
				catalogErr = err
				return
			}
			cat, catalogErr = catalog.Resolve(s.CatalogDir)
		})
		return cat, catalogErr
	}

	f.InstanceOptions = func() ([]instance.Option, error) {
		s, err := f.Settings()
		if err != nil {
			return nil, err
		}
		c, err := f.Catalog()
		if err != nil {
			return nil, err
		}
		log := logger.Global()
		return []instance.Option{
			instance.WithSettings(s),
			instance.WithCatalog(c),
			instance.WithLogger(log),
			instance.WithObserver(supervisor.LogObserver(log)),
		}, nil
	}

	return f
}
