// Package materialize renders a catalog template into a fresh, exclusively
// owned project directory.
package materialize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/options"
)

const (
	// DirPrefix starts the name of every project directory.
	DirPrefix = "stencil-"
	// RecordFileName is written at the project root describing the instantiation.
	RecordFileName = "stencil.json"
	// DefaultRetryBudget bounds attempts to create a unique project directory.
	DefaultRetryBudget = 3
)

// Project is a materialized template on disk.
type Project struct {
	ID            string
	Dir           string
	Kind          catalog.Kind
	Configuration options.Configuration
	Options       options.OptionSet
	Template      *catalog.Template
	Features      map[string]bool
	// Hash is a content hash of every rendered file, stable for identical inputs.
	Hash      string
	CreatedAt time.Time
}

// Manifest is shorthand for p.Template.Manifest.
func (p *Project) Manifest() *catalog.Manifest { return p.Template.Manifest }

// Remove deletes the project directory tree.
func (p *Project) Remove() error {
	return os.RemoveAll(p.Dir)
}

// Record is the content of stencil.json.
type Record struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Configuration string    `json:"configuration"`
	Excluded      []string  `json:"excluded,omitempty"`
	Features      []string  `json:"features"`
	Hash          string    `json:"hash"`
	CatalogSource string    `json:"catalog"`
	CreatedAt     time.Time `json:"created_at"`
}

// Materializer renders templates from one catalog into directories under workRoot.
type Materializer struct {
	catalog     *catalog.Catalog
	workRoot    string
	log         logger.Logger
	retryBudget int
	newID       func() string
	now         func() time.Time
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Materializer) { m.log = l }
}

// WithRetryBudget sets how many unique directory names are tried before giving up.
func WithRetryBudget(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.retryBudget = n
		}
	}
}

// New creates a Materializer.
func New(c *catalog.Catalog, workRoot string, opts ...Option) *Materializer {
	m := &Materializer{
		catalog:     c,
		workRoot:    workRoot,
		log:         logger.Global(),
		retryBudget: DefaultRetryBudget,
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WorkRoot returns the parent directory of materialized projects.
func (m *Materializer) WorkRoot() string { return m.workRoot }

// Materialize renders the template for kind into a new directory, applying the
// option set and build configuration. On failure nothing is left on disk.
func (m *Materializer) Materialize(ctx context.Context, kind catalog.Kind, opts options.OptionSet, cfg options.Configuration) (*Project, error) {
	fail := func(reason Reason, dir, path string, err error) error {
		if dir != "" {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				err = errors.Join(err, fmt.Errorf("removing %s: %w", dir, rmErr))
			}
		}
		return &MaterializationError{Reason: reason, Kind: kind, Dir: dir, Path: path, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, fail(Canceled, "", "", err)
	}

	tmpl, err := m.catalog.Lookup(kind)
	if err != nil {
		if errors.Is(err, catalog.ErrTemplateNotFound) {
			return nil, fail(TemplateNotFound, "", "", err)
		}
		if errors.Is(err, catalog.ErrInvalidManifest) {
			return nil, fail(InvalidTemplate, "", "", err)
		}
		return nil, fail(IOFailure, "", "", err)
	}
	manifest := tmpl.Manifest

	features, ignored := manifest.EnabledFeatures(opts)
	if len(ignored) > 0 {
		m.log.Debug().
			Str("kind", tmpl.Kind.String()).
			Strs("features", ignored).
			Msg("ignoring options for features the template does not declare")
	}

	id, dir, err := m.createDir(tmpl.Kind)
	if err != nil {
		var me *MaterializationError
		if errors.As(err, &me) {
			return nil, me
		}
		return nil, fail(IOFailure, "", m.workRoot, err)
	}

	// Names stay independent of the directory so identical inputs hash identically.
	projectName := strings.ToLower(tmpl.Kind.String())
	data := &RenderData{
		ProjectName:   projectName,
		ModulePath:    strings.TrimSuffix(manifest.ModulePrefix, "/") + "/" + projectName,
		Kind:          tmpl.Kind.String(),
		Configuration: cfg.String(),
		PortEnv:       manifest.Run.PortEnv,
		Features:      features,
	}

	h := sha256.New()
	walkErr := fs.WalkDir(tmpl.FS, ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return &MaterializationError{Reason: IOFailure, Path: rel, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return &MaterializationError{Reason: Canceled, Path: rel, Err: err}
		}
		if rel == "." {
			return nil
		}
		if rel == catalog.ManifestFileName {
			return nil
		}
		if manifest.Excludes(rel, features) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		return m.writeEntry(tmpl.FS, dir, rel, d, data, h)
	})
	if walkErr != nil {
		var me *MaterializationError
		if !errors.As(walkErr, &me) {
			me = &MaterializationError{Reason: IOFailure, Err: walkErr}
		}
		return nil, fail(me.Reason, dir, me.Path, me.Err)
	}

	p := &Project{
		ID:            id,
		Dir:           dir,
		Kind:          tmpl.Kind,
		Configuration: cfg,
		Options:       opts,
		Template:      tmpl,
		Features:      features,
		Hash:          hex.EncodeToString(h.Sum(nil))[:12],
		CreatedAt:     m.now(),
	}

	if err := m.writeRecord(p); err != nil {
		return nil, fail(IOFailure, dir, RecordFileName, err)
	}

	m.log.Debug().
		Str("kind", p.Kind.String()).
		Str("configuration", cfg.String()).
		Str("options", opts.String()).
		Str("dir", dir).
		Str("hash", p.Hash).
		Msg("materialized project")

	return p, nil
}

// createDir creates a uniquely named directory, retrying on name collisions.
func (m *Materializer) createDir(kind catalog.Kind) (id, dir string, err error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", "", fmt.Errorf("creating work root: %w", err)
	}
	prefix := DirPrefix + strings.ToLower(kind.String()) + "-"
	for attempt := 1; attempt <= m.retryBudget; attempt++ {
		id = m.newID()
		dir = filepath.Join(m.workRoot, prefix+id)
		err = os.Mkdir(dir, 0o755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("creating project directory: %w", err)
		}
		m.log.Debug().Str("dir", dir).Int("attempt", attempt).Msg("project directory exists, retrying")
	}
	return "", "", &MaterializationError{
		Reason: DirectoryCollision,
		Kind:   kind,
		Path:   m.workRoot,
		Err:    fmt.Errorf("%d attempts exhausted: %w", m.retryBudget, err),
	}
}

// writeEntry copies or renders a single catalog entry into the project directory.
func (m *Materializer) writeEntry(fsys fs.FS, dir, rel string, d fs.DirEntry, data *RenderData, h hash.Hash) error {
	destRel := strings.TrimSuffix(rel, TemplateSuffix)
	dest, err := safeJoin(dir, destRel)
	if err != nil {
		return &MaterializationError{Reason: IOFailure, Path: rel, Err: err}
	}

	if d.IsDir() {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return &MaterializationError{Reason: IOFailure, Path: rel, Err: err}
		}
		return nil
	}

	content, err := fs.ReadFile(fsys, rel)
	if err != nil {
		return &MaterializationError{Reason: IOFailure, Path: rel, Err: err}
	}
	if strings.HasSuffix(rel, TemplateSuffix) {
		content, err = renderFile(rel, content, data)
		if err != nil {
			return &MaterializationError{Reason: RenderFailure, Path: rel, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &MaterializationError{Reason: IOFailure, Path: rel, Err: err}
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return &MaterializationError{Reason: IOFailure, Path: rel, Err: err}
	}

	// Separator and name framing keep identical contents under different names distinct.
	h.Write([]byte("\x00" + destRel + "\x00"))
	h.Write(content)
	return nil
}

func (m *Materializer) writeRecord(p *Project) error {
	var enabled []string
	for _, name := range p.Manifest().FeatureNames() {
		if p.Features[name] {
			enabled = append(enabled, name)
		}
	}
	rec := Record{
		ID:            p.ID,
		Kind:          p.Kind.String(),
		Configuration: p.Configuration.String(),
		Excluded:      p.Options.Excluded(),
		Features:      enabled,
		Hash:          p.Hash,
		CatalogSource: m.catalog.Source(),
		CreatedAt:     p.CreatedAt.UTC(),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.Dir, RecordFileName), append(data, '\n'), 0o644)
}

// ReadRecord loads the stencil.json record from a project directory.
func ReadRecord(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFileName))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", RecordFileName, err)
	}
	return &rec, nil
}

// safeJoin joins rel onto root and rejects results outside root.
func safeJoin(root, rel string) (string, error) {
	dest := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, dest)
	if err != nil {
		return "", err
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", fmt.Errorf("path %q escapes project directory", rel)
	}
	return dest, nil
}
