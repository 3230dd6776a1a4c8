package catalog

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/schmitthub/stencil/internal/options"
)

// ManifestFileName is the declarative manifest at the root of every template.
const ManifestFileName = "template.yaml"

// Conventional endpoint paths used when a manifest does not override them.
const (
	DefaultSwaggerUIPath   = "/swagger/index.html"
	DefaultSwaggerDocsPath = "/swagger/v1/swagger.json"
	DefaultHealthPath      = "/health"
)

// Endpoint names a manifest may declare.
const (
	EndpointSwaggerUI   = "swagger_ui"
	EndpointSwaggerDocs = "swagger_docs"
	EndpointHealth      = "health"
)

// Manifest describes one template: its optional features, per-configuration
// build flags, and the contract for building, running and probing it.
type Manifest struct {
	Kind           string                       `yaml:"kind"`
	Description    string                       `yaml:"description"`
	ModulePrefix   string                       `yaml:"module_prefix"`
	Features       []Feature                    `yaml:"features"`
	Configurations map[string]ConfigurationSpec `yaml:"configurations"`
	Build          BuildSpec                    `yaml:"build"`
	Run            RunSpec                      `yaml:"run"`
	Ready          ReadySpec                    `yaml:"ready"`
	Endpoints      map[string]string            `yaml:"endpoints"`
}

// Feature is an optional part of a template. Files lists path.Match globs,
// relative to the template root, that are only materialized while the feature is enabled.
type Feature struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Files       []string `yaml:"files"`
}

// ConfigurationSpec holds the build flags for one build configuration.
type ConfigurationSpec struct {
	Flags string `yaml:"flags"`
}

// BuildSpec is the templated build command line and the artifact name it produces.
type BuildSpec struct {
	Command string `yaml:"command"`
	Output  string `yaml:"output"`
}

// RunSpec describes how the built artifact receives its configuration.
type RunSpec struct {
	PortEnv string            `yaml:"port_env"`
	Env     map[string]string `yaml:"env"`
	Args    []string          `yaml:"args"`
}

// ReadySpec names the liveness path polled after launch.
type ReadySpec struct {
	Path string `yaml:"path"`
}

// ParseManifest decodes a manifest and fills defaults.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Build.Output == "" {
		m.Build.Output = "app"
	}
	if m.Run.PortEnv == "" {
		m.Run.PortEnv = "PORT"
	}
	if m.Ready.Path == "" {
		m.Ready.Path = DefaultHealthPath
	}
	if m.ModulePrefix == "" {
		m.ModulePrefix = "example.com/stencil"
	}
	return &m, nil
}

// Validate checks the manifest against the directory it was loaded from.
func (m *Manifest) Validate(dir string) error {
	var errs []error
	if m.Kind == "" {
		errs = append(errs, errors.New("kind is required"))
	} else if !strings.EqualFold(m.Kind, dir) {
		errs = append(errs, fmt.Errorf("kind %q does not match directory %q", m.Kind, dir))
	}
	if strings.TrimSpace(m.Build.Command) == "" {
		errs = append(errs, errors.New("build.command is required"))
	}
	if !strings.HasPrefix(m.Ready.Path, "/") {
		errs = append(errs, fmt.Errorf("ready.path must be absolute, got %q", m.Ready.Path))
	}
	for _, c := range options.Configurations() {
		if _, ok := m.Configurations[c.String()]; !ok {
			errs = append(errs, fmt.Errorf("configurations.%s is required", c))
		}
	}
	seen := make(map[string]bool, len(m.Features))
	for _, f := range m.Features {
		if f.Name == "" {
			errs = append(errs, errors.New("feature without a name"))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("duplicate feature %q", f.Name))
		}
		seen[f.Name] = true
		for _, pattern := range f.Files {
			if _, err := path.Match(pattern, ""); err != nil {
				errs = append(errs, fmt.Errorf("feature %q: bad pattern %q: %v", f.Name, pattern, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidManifest, dir, err)
	}
	return nil
}

// HasFeature reports whether the template declares the named feature.
func (m *Manifest) HasFeature(name string) bool {
	for _, f := range m.Features {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FeatureNames lists declared features in manifest order.
func (m *Manifest) FeatureNames() []string {
	names := make([]string, 0, len(m.Features))
	for _, f := range m.Features {
		names = append(names, f.Name)
	}
	return names
}

// EnabledFeatures resolves an option set against the declared features.
// Excluded names the template does not declare are returned as ignored.
func (m *Manifest) EnabledFeatures(opts options.OptionSet) (enabled map[string]bool, ignored []string) {
	enabled = make(map[string]bool, len(m.Features))
	for _, f := range m.Features {
		enabled[f.Name] = opts.Enabled(f.Name)
	}
	for _, name := range opts.Excluded() {
		if !m.HasFeature(name) {
			ignored = append(ignored, name)
		}
	}
	return enabled, ignored
}

// Excludes reports whether rel (a slash path relative to the template root)
// belongs only to features that are disabled.
func (m *Manifest) Excludes(rel string, enabled map[string]bool) bool {
	for _, f := range m.Features {
		if enabled[f.Name] {
			continue
		}
		for _, pattern := range f.Files {
			if ok, _ := path.Match(pattern, rel); ok {
				return true
			}
		}
	}
	return false
}

// Flags returns the build flags for a configuration.
func (m *Manifest) Flags(c options.Configuration) string {
	return m.Configurations[c.String()].Flags
}

// Endpoint returns the relative path for a named endpoint, falling back to the conventional one.
func (m *Manifest) Endpoint(name string) string {
	if p, ok := m.Endpoints[name]; ok && p != "" {
		return p
	}
	switch name {
	case EndpointSwaggerUI:
		return DefaultSwaggerUIPath
	case EndpointSwaggerDocs:
		return DefaultSwaggerDocsPath
	case EndpointHealth:
		return m.Ready.Path
	}
	return ""
}
