package materialize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/logger/loggertest"
	"github.com/schmitthub/stencil/internal/options"
)

const apiManifest = `
kind: Api
module_prefix: example.com/test
features:
  - name: Docs
    files: ["docs.go.tmpl", "static/*"]
configurations:
  Debug: {flags: ""}
  Release: {flags: "-tags release"}
build:
  command: "go build ."
`

func apiCatalog(extra fstest.MapFS) *catalog.Catalog {
	fsys := fstest.MapFS{
		"Api/template.yaml": {Data: []byte(apiManifest)},
		"Api/go.mod.tmpl":   {Data: []byte("module {{.ModulePath}}\n")},
		"Api/main.go.tmpl": {Data: []byte(`package main
// {{.Configuration}} {{.PortEnv}}
{{- if feature "Docs"}}
// docs wired
{{- end}}
`)},
		"Api/docs.go.tmpl":      {Data: []byte("package main\n")},
		"Api/static/index.html": {Data: []byte("<html></html>")},
		"Api/assets/logo.txt":   {Data: []byte("raw {{ not rendered }}")},
	}
	for k, v := range extra {
		fsys[k] = v
	}
	return catalog.New(fsys, "test")
}

func newTestMaterializer(t *testing.T, c *catalog.Catalog, opts ...Option) (*Materializer, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "work")
	opts = append([]Option{WithLogger(loggertest.NewNop())}, opts...)
	return New(c, root, opts...), root
}

func TestMaterialize_RendersAndStripsSuffix(t *testing.T) {
	m, root := newTestMaterializer(t, apiCatalog(nil))

	p, err := m.Materialize(context.Background(), "Api", options.New(), options.Debug)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Remove() })

	assert.Equal(t, root, filepath.Dir(p.Dir))
	assert.Contains(t, filepath.Base(p.Dir), DirPrefix+"api-")
	assert.Len(t, p.Hash, 12)

	mainGo, err := os.ReadFile(filepath.Join(p.Dir, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(mainGo), "// Debug PORT")
	assert.Contains(t, string(mainGo), "// docs wired")

	goMod, err := os.ReadFile(filepath.Join(p.Dir, "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, "module example.com/test/api\n", string(goMod))

	raw, err := os.ReadFile(filepath.Join(p.Dir, "assets", "logo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "raw {{ not rendered }}", string(raw), "non-.tmpl files are copied verbatim")

	assert.FileExists(t, filepath.Join(p.Dir, "docs.go"))
	assert.FileExists(t, filepath.Join(p.Dir, "static", "index.html"))
	assert.NoFileExists(t, filepath.Join(p.Dir, catalog.ManifestFileName))
	assert.NoFileExists(t, filepath.Join(p.Dir, "main.go.tmpl"))

	rec, err := ReadRecord(p.Dir)
	require.NoError(t, err)
	assert.Equal(t, "Api", rec.Kind)
	assert.Equal(t, "Debug", rec.Configuration)
	assert.Equal(t, []string{"Docs"}, rec.Features)
	assert.Equal(t, p.Hash, rec.Hash)
	assert.Equal(t, "test", rec.CatalogSource)
}

func TestMaterialize_ExcludedFeatureRemovesFilesAndFragments(t *testing.T) {
	m, _ := newTestMaterializer(t, apiCatalog(nil))

	p, err := m.Materialize(context.Background(), "Api", options.New().WithExclude("Docs"), options.Release)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Remove() })

	assert.NoFileExists(t, filepath.Join(p.Dir, "docs.go"))
	assert.NoFileExists(t, filepath.Join(p.Dir, "static", "index.html"))

	mainGo, err := os.ReadFile(filepath.Join(p.Dir, "main.go"))
	require.NoError(t, err)
	assert.NotContains(t, string(mainGo), "docs wired")
	assert.Contains(t, string(mainGo), "// Release PORT")

	rec, err := ReadRecord(p.Dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Docs"}, rec.Excluded)
	assert.Empty(t, rec.Features)
}

func TestMaterialize_UnknownFeatureIsNoop(t *testing.T) {
	tl := loggertest.New()
	m, _ := newTestMaterializer(t, apiCatalog(nil), WithLogger(tl))

	p, err := m.Materialize(context.Background(), "Api", options.New().WithExcludeOpenApiDocs(), options.Debug)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Remove() })

	assert.FileExists(t, filepath.Join(p.Dir, "docs.go"))
	assert.Contains(t, tl.Output(), options.FeatureOpenApiDocs)
}

func TestMaterialize_HashStableAcrossRuns(t *testing.T) {
	m, _ := newTestMaterializer(t, catalog.New(fstest.MapFS{
		"Api/template.yaml": {Data: []byte(apiManifest)},
		"Api/main.go.tmpl":  {Data: []byte("package main // {{.Configuration}}\n")},
	}, "test"))

	a, err := m.Materialize(context.Background(), "Api", options.New(), options.Debug)
	require.NoError(t, err)
	b, err := m.Materialize(context.Background(), "Api", options.New(), options.Debug)
	require.NoError(t, err)
	c, err := m.Materialize(context.Background(), "Api", options.New(), options.Release)
	require.NoError(t, err)

	assert.NotEqual(t, a.Dir, b.Dir)
	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestMaterialize_TemplateNotFound(t *testing.T) {
	m, root := newTestMaterializer(t, apiCatalog(nil))

	_, err := m.Materialize(context.Background(), "Desktop", options.New(), options.Debug)
	require.Error(t, err)

	var me *MaterializationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, TemplateNotFound, me.Reason)
	assert.Empty(t, me.Dir)
	assert.True(t, errors.Is(err, catalog.ErrTemplateNotFound))
	assert.NoDirExists(t, root)
}

func TestMaterialize_RenderFailureRemovesDirectory(t *testing.T) {
	c := apiCatalog(fstest.MapFS{
		"Api/bad.go.tmpl": {Data: []byte("{{.DoesNotExist}}")},
	})
	m, root := newTestMaterializer(t, c)

	_, err := m.Materialize(context.Background(), "Api", options.New(), options.Debug)
	require.Error(t, err)

	var me *MaterializationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, RenderFailure, me.Reason)
	assert.Equal(t, "bad.go.tmpl", me.Path)
	require.NotEmpty(t, me.Dir)
	assert.NoDirExists(t, me.Dir)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "no project directory may leak")
}

func TestMaterialize_UnexpandedTokenRejected(t *testing.T) {
	c := apiCatalog(fstest.MapFS{
		"Api/nested.txt.tmpl": {Data: []byte(`{{"{{.Port}}"}}`)},
	})
	m, _ := newTestMaterializer(t, c)

	_, err := m.Materialize(context.Background(), "Api", options.New(), options.Debug)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnexpandedToken))
}

func TestMaterialize_DirectoryCollision(t *testing.T) {
	m, root := newTestMaterializer(t, apiCatalog(nil), WithRetryBudget(2))
	m.newID = func() string { return "00000000-fixed" }

	require.NoError(t, os.MkdirAll(filepath.Join(root, DirPrefix+"api-00000000-fixed"), 0o755))

	_, err := m.Materialize(context.Background(), "Api", options.New(), options.Debug)
	require.Error(t, err)

	var me *MaterializationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, DirectoryCollision, me.Reason)
	assert.Contains(t, me.Error(), "2 attempts exhausted")
}

func TestMaterialize_CollisionRetriesWithFreshID(t *testing.T) {
	m, root := newTestMaterializer(t, apiCatalog(nil))
	ids := []string{"11111111-taken", "22222222-free"}
	var n int
	m.newID = func() string { id := ids[n]; n++; return id }

	require.NoError(t, os.MkdirAll(filepath.Join(root, DirPrefix+"api-11111111-taken"), 0o755))

	p, err := m.Materialize(context.Background(), "Api", options.New(), options.Debug)
	require.NoError(t, err)
	assert.Equal(t, "22222222-free", p.ID)
}

func TestMaterialize_Canceled(t *testing.T) {
	m, _ := newTestMaterializer(t, apiCatalog(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Materialize(ctx, "Api", options.New(), options.Debug)
	var me *MaterializationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, Canceled, me.Reason)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMaterialize_ConcurrentRunsAreIsolated(t *testing.T) {
	m, _ := newTestMaterializer(t, apiCatalog(nil))

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		dirs = make(map[string]bool)
	)
	shared := options.New().WithExclude("Docs")
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := m.Materialize(context.Background(), "Api", shared, options.Debug)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			dirs[p.Dir] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, dirs, n)
	for dir := range dirs {
		assert.NoFileExists(t, filepath.Join(dir, "docs.go"))
	}
}

func TestMaterialize_EmbeddedWebAPI(t *testing.T) {
	tests := []struct {
		name     string
		opts     options.OptionSet
		wantDocs bool
	}{
		{name: "docs included", opts: options.New(), wantDocs: true},
		{name: "docs excluded", opts: options.New().WithExcludeOpenApiDocs(), wantDocs: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMaterializer(t, catalog.Default())
			p, err := m.Materialize(context.Background(), catalog.WebAPI, tt.opts, options.Debug)
			require.NoError(t, err)
			t.Cleanup(func() { _ = p.Remove() })

			mainGo, err := os.ReadFile(filepath.Join(p.Dir, "main.go"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantDocs, strings.Contains(string(mainGo), "registerDocs(mux)"))

			for _, f := range []string{"docs.go", "docs_release.go", "openapi.json"} {
				_, statErr := os.Stat(filepath.Join(p.Dir, f))
				assert.Equal(t, tt.wantDocs, statErr == nil, fmt.Sprintf("%s presence", f))
			}
			assert.FileExists(t, filepath.Join(p.Dir, "go.mod"))
		})
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	got, err := safeJoin(root, "a/b.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.go"), got)

	_, err = safeJoin(root, "../escape.go")
	require.Error(t, err)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/tmp/a b'`, ShellQuote("/tmp/a b"))
	assert.Equal(t, `'it'"'"'s'`, ShellQuote("it's"))
}

func TestRenderString(t *testing.T) {
	out, err := RenderString("cmd", "{{.Go}} build -o {{quote .Output}} .", map[string]string{"Go": "go", "Output": "/x y/app"})
	require.NoError(t, err)
	assert.Equal(t, "go build -o '/x y/app' .", out)

	_, err = RenderString("cmd", "{{.Missing}}", map[string]string{})
	require.Error(t, err)
}
