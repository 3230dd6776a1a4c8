// Package options defines the immutable inputs of one instantiation:
// the build configuration and the set of optional template features.
package options

import (
	"fmt"
	"sort"
	"strings"
)

// Feature names understood by the shipped template catalog.
const (
	FeatureOpenApiDocs = "OpenApiDocs"
	FeatureHeartbeat   = "Heartbeat"
)

// Configuration selects Debug or Release build semantics.
type Configuration int

const (
	Debug Configuration = iota
	Release
)

func (c Configuration) String() string {
	switch c {
	case Debug:
		return "Debug"
	case Release:
		return "Release"
	default:
		return fmt.Sprintf("Configuration(%d)", int(c))
	}
}

// ParseConfiguration accepts "Debug" or "Release", case-insensitively.
func ParseConfiguration(s string) (Configuration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug, nil
	case "release":
		return Release, nil
	default:
		return Debug, fmt.Errorf("unknown build configuration %q (want Debug or Release)", s)
	}
}

// Configurations lists every configuration in a stable order.
func Configurations() []Configuration {
	return []Configuration{Debug, Release}
}

// OptionSet records which optional features are excluded from one instantiation.
// The zero value includes every feature. Methods never modify the receiver,
// so a set can be shared between concurrent instantiations.
type OptionSet struct {
	excluded map[string]struct{}
}

// New returns an option set with every optional feature included.
func New() OptionSet {
	return OptionSet{}
}

// WithExclude returns a copy of the set with the named feature excluded.
// Features a template does not declare are ignored at materialization time.
func (o OptionSet) WithExclude(feature string) OptionSet {
	next := o.clone()
	next.excluded[feature] = struct{}{}
	return next
}

// WithInclude returns a copy of the set with the named feature included again.
func (o OptionSet) WithInclude(feature string) OptionSet {
	if !o.Excludes(feature) {
		return o
	}
	next := o.clone()
	delete(next.excluded, feature)
	return next
}

// WithExcludeOpenApiDocs returns a copy that strips the interactive API docs wiring.
func (o OptionSet) WithExcludeOpenApiDocs() OptionSet {
	return o.WithExclude(FeatureOpenApiDocs)
}

// Excludes reports whether the named feature is excluded.
func (o OptionSet) Excludes(feature string) bool {
	_, ok := o.excluded[feature]
	return ok
}

// Enabled reports whether the named feature is included.
func (o OptionSet) Enabled(feature string) bool {
	return !o.Excludes(feature)
}

// Excluded returns the excluded feature names, sorted.
func (o OptionSet) Excluded() []string {
	names := make([]string, 0, len(o.excluded))
	for name := range o.excluded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the set as "-A,-B", or "default" when nothing is excluded.
func (o OptionSet) String() string {
	names := o.Excluded()
	if len(names) == 0 {
		return "default"
	}
	for i, n := range names {
		names[i] = "-" + n
	}
	return strings.Join(names, ",")
}

func (o OptionSet) clone() OptionSet {
	next := OptionSet{excluded: make(map[string]struct{}, len(o.excluded)+1)}
	for k := range o.excluded {
		next.excluded[k] = struct{}{}
	}
	return next
}
