package procout

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_EvictsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Add(Line{Text: fmt.Sprintf("line %d", i)})
	}

	lines := b.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "line 3", lines[0].Text)
	assert.Equal(t, "line 5", lines[2].Text)
	assert.Equal(t, "... (2 earlier lines omitted)\nline 3\nline 4\nline 5", b.String())
}

func TestBuffer_StringWithoutEviction(t *testing.T) {
	b := NewBuffer(10)
	assert.Equal(t, "", b.String())

	b.Add(Line{Text: "a"})
	b.Add(Line{Text: "b"})
	assert.Equal(t, "a\nb", b.String())
}

func TestBuffer_Contains(t *testing.T) {
	b := NewBuffer(4)
	b.Add(Line{Text: "listen tcp 127.0.0.1:20001: bind: address already in use"})

	assert.True(t, b.Contains("address already in use"))
	assert.False(t, b.Contains("permission denied"))
}

func TestBuffer_ZeroCapacity(t *testing.T) {
	b := NewBuffer(0)
	b.Add(Line{Text: "a"})
	b.Add(Line{Text: "b"})
	require.Len(t, b.Lines(), 1)
	assert.Equal(t, "b", b.Lines()[0].Text)
}

func TestBuffer_LinesIsCopy(t *testing.T) {
	b := NewBuffer(2)
	b.Add(Line{Text: "a"})
	lines := b.Lines()
	lines[0].Text = "mutated"
	assert.Equal(t, "a", b.Lines()[0].Text)
}

func TestWriter_SplitsLines(t *testing.T) {
	var got []Line
	w := NewWriter(Stderr, func(l Line) { got = append(got, l) })

	n, err := w.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	require.Len(t, got, 1)

	_, err = w.Write([]byte("ond\r\nthird"))
	require.NoError(t, err)
	require.Len(t, got, 2)

	w.Flush()
	w.Flush()
	require.Len(t, got, 3)

	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Text, got[1].Text, got[2].Text})
	for _, l := range got {
		assert.Equal(t, Stderr, l.Stream)
		assert.False(t, l.Time.IsZero())
	}
}

func TestWriter_CapsUnterminatedLine(t *testing.T) {
	var got []Line
	w := NewWriter(Stdout, func(l Line) { got = append(got, l) })

	chunk := bytes.Repeat([]byte("x"), 1000)
	for written := 0; written < 2*MaxLineBytes+500; written += len(chunk) {
		_, err := w.Write(chunk)
		require.NoError(t, err)
		assert.Less(t, len(w.buf), MaxLineBytes)
	}
	require.Len(t, got, 2)
	for _, l := range got {
		assert.Len(t, l.Text, MaxLineBytes)
	}

	_, err := w.Write([]byte("tail\n"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, strings.HasSuffix(got[2].Text, "xtail"))
	assert.Empty(t, w.buf)
}

func TestWriter_IntoBuffer(t *testing.T) {
	b := NewBuffer(100)
	w := NewWriter(Stdout, b.Add)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fmt.Fprintf(w, "line %d\n", i)
		}(i)
	}
	wg.Wait()

	assert.Len(t, b.Lines(), 10)
}
