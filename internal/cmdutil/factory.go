package cmdutil

import (
	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/instance"
	"github.com/schmitthub/stencil/internal/iostreams"
)

// Factory provides shared dependencies for CLI commands.
// The struct defines what dependencies exist; internal/cmd/factory wires
// the real implementations. Commands copy only the fields they need into
// their per-command Options structs.
type Factory struct {
	// Set from global flags before a command runs.
	ConfigPath string
	Debug      bool

	// Version info (set at build time via ldflags)
	Version string
	Commit  string

	IOStreams *iostreams.IOStreams

	// Lazily loaded; the first result is cached.
	Settings func() (*config.Settings, error)
	Catalog  func() (*catalog.Catalog, error)

	// InstanceOptions returns the options every instance started by a
	// command shares: settings, catalog and an output observer.
	InstanceOptions func() ([]instance.Option, error)
}
