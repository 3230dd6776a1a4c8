package cmdutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	type row struct {
		Kind string `json:"kind"`
		UI   int    `json:"ui"`
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []row{{Kind: "WebApi", UI: 200}}))

	expected := `[
  {
    "kind": "WebApi",
    "ui": 200
  }
]
`
	assert.Equal(t, expected, buf.String())
}

func TestWriteJSON_NoHTMLEscaping(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, map[string]string{"path": "/swagger/<v1>"}))
	assert.Contains(t, buf.String(), "/swagger/<v1>")
	assert.NotContains(t, buf.String(), `\u003c`)
}
