package list

import (
	"context"
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/google/shlex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/iostreams/iostreamstest"
)

func TestNewCmdList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON bool
		wantErr  bool
	}{
		{name: "defaults"},
		{name: "json", input: "--json", wantJSON: true},
		{name: "arguments rejected", input: "WebApi", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tio := iostreamstest.New()
			f := &cmdutil.Factory{IOStreams: tio.IOStreams}
			var gotOpts *ListOptions
			cmd := NewCmdList(f, func(_ context.Context, opts *ListOptions) error {
				gotOpts = opts
				return nil
			})

			argv, err := shlex.Split(tt.input)
			require.NoError(t, err)
			cmd.SetArgs(argv)
			cmd.SetOut(tio.OutBuf)
			cmd.SetErr(tio.ErrBuf)

			_, err = cmd.ExecuteC()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, gotOpts)
			assert.Equal(t, tt.wantJSON, gotOpts.JSON)
		})
	}
}

func embedded() (*catalog.Catalog, error) { return catalog.Default(), nil }

func TestListRun_Table(t *testing.T) {
	tio := iostreamstest.New()
	opts := &ListOptions{IOStreams: tio.IOStreams, Catalog: embedded}

	require.NoError(t, listRun(context.Background(), opts))

	out := tio.OutBuf.String()
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "WebApi")
	assert.Contains(t, out, "OpenApiDocs")
	assert.Contains(t, out, "Worker")
	assert.Contains(t, out, "Heartbeat")
}

func TestListRun_JSON(t *testing.T) {
	tio := iostreamstest.New()
	opts := &ListOptions{IOStreams: tio.IOStreams, Catalog: embedded, JSON: true}

	require.NoError(t, listRun(context.Background(), opts))

	var got []templateJSON
	require.NoError(t, json.Unmarshal([]byte(tio.OutBuf.String()), &got))
	require.Len(t, got, 2)

	web := got[0]
	assert.Equal(t, "WebApi", web.Kind)
	assert.Equal(t, []string{"Debug", "Release"}, web.Configurations)
	require.Len(t, web.Features, 1)
	assert.Equal(t, "OpenApiDocs", web.Features[0].Name)
	assert.Equal(t, catalog.DefaultSwaggerUIPath, web.Endpoints[catalog.EndpointSwaggerUI])
	assert.Equal(t, "/health", web.ReadyPath)

	assert.Equal(t, "Worker", got[1].Kind)
}

func TestListRun_EmptyCatalog(t *testing.T) {
	tio := iostreamstest.New()
	opts := &ListOptions{
		IOStreams: tio.IOStreams,
		Catalog: func() (*catalog.Catalog, error) {
			return catalog.New(fstest.MapFS{"README.md": {Data: []byte("x")}}, "empty"), nil
		},
	}

	require.NoError(t, listRun(context.Background(), opts))
	assert.Empty(t, tio.OutBuf.String())
	assert.Contains(t, tio.ErrBuf.String(), "No templates in catalog empty")
}
