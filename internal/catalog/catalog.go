// Package catalog provides the template catalog: a read-only tree of project
// skeletons, one directory per template kind, each described by a template.yaml.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

//go:embed all:templates
var embedded embed.FS

var (
	// ErrTemplateNotFound is returned when no template exists for a kind.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrInvalidManifest is returned when a template manifest cannot be used.
	ErrInvalidManifest = errors.New("invalid template manifest")
)

// Kind identifies a template in the catalog.
type Kind string

// Kinds shipped with the embedded catalog.
const (
	WebAPI Kind = "WebApi"
	Worker Kind = "Worker"
)

func (k Kind) String() string { return string(k) }

// Catalog is a template source. It is never written to, so one Catalog
// may back any number of concurrent materializations.
type Catalog struct {
	fsys   fs.FS
	source string
}

// New wraps fsys as a catalog. source is a human-readable origin used in logs and errors.
func New(fsys fs.FS, source string) *Catalog {
	return &Catalog{fsys: fsys, source: source}
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		// fs.Sub only fails on an invalid path literal.
		panic(err)
	}
	return New(sub, "embedded")
}

// Open returns a catalog rooted at an on-disk directory.
func Open(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening catalog %s: not a directory", dir)
	}
	return New(os.DirFS(dir), dir), nil
}

// Resolve returns the on-disk catalog at dir, or the embedded catalog when dir is empty.
func Resolve(dir string) (*Catalog, error) {
	if dir == "" {
		return Default(), nil
	}
	return Open(dir)
}

// Source describes where the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// Template is one resolved entry of the catalog.
type Template struct {
	Kind     Kind
	Dir      string
	Manifest *Manifest
	// FS is rooted at the template directory.
	FS fs.FS
}

// Lookup resolves a kind to its template. Kind matching is case-insensitive.
func (c *Catalog) Lookup(kind Kind) (*Template, error) {
	dir, err := c.findDir(kind)
	if err != nil {
		return nil, err
	}

	data, err := fs.ReadFile(c.fsys, dir+"/"+ManifestFileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrTemplateNotFound, kind, ManifestFileName)
		}
		return nil, fmt.Errorf("reading manifest for %s: %w", kind, err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(dir); err != nil {
		return nil, err
	}

	sub, err := fs.Sub(c.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("opening template %s: %w", kind, err)
	}

	return &Template{
		Kind:     Kind(m.Kind),
		Dir:      dir,
		Manifest: m,
		FS:       sub,
	}, nil
}

func (c *Catalog) findDir(kind Kind) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("%w: empty kind", ErrTemplateNotFound)
	}
	entries, err := fs.ReadDir(c.fsys, ".")
	if err != nil {
		return "", fmt.Errorf("reading catalog %s: %w", c.source, err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), string(kind)) {
			return e.Name(), nil
		}
	}
	return "", fmt.Errorf("%w: %s (catalog %s)", ErrTemplateNotFound, kind, c.source)
}

// Kinds lists every template that carries a manifest, sorted by name.
func (c *Catalog) Kinds() ([]Kind, error) {
	entries, err := fs.ReadDir(c.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", c.source, err)
	}
	var kinds []Kind
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := fs.Stat(c.fsys, e.Name()+"/"+ManifestFileName); err == nil {
			kinds = append(kinds, Kind(e.Name()))
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds, nil
}

// Templates resolves every kind in the catalog. Invalid templates abort the listing.
func (c *Catalog) Templates() ([]*Template, error) {
	kinds, err := c.Kinds()
	if err != nil {
		return nil, err
	}
	out := make([]*Template, 0, len(kinds))
	for _, k := range kinds {
		t, err := c.Lookup(k)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
