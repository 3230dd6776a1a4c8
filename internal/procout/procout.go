// Package procout collects child-process output line by line: a bounded
// buffer of recent lines for error reports, and a writer that splits a byte
// stream into lines for observers.
package procout

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Stream names the origin of a line.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one line of child output.
type Line struct {
	Time   time.Time
	Stream Stream
	Text   string
}

// Buffer keeps the most recent lines up to a fixed capacity.
type Buffer struct {
	mu       sync.RWMutex
	lines    []Line
	capacity int
	dropped  int
}

// NewBuffer creates a buffer holding at most capacity lines.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{
		lines:    make([]Line, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a line, evicting the oldest one when full.
func (b *Buffer) Add(l Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) >= b.capacity {
		b.lines = b.lines[1:]
		b.dropped++
	}
	b.lines = append(b.lines, l)
}

// Lines returns a copy of the buffered lines, oldest first.
func (b *Buffer) Lines() []Line {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// String joins buffered lines with newlines, noting evicted lines first.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var sb strings.Builder
	if b.dropped > 0 {
		sb.WriteString("... (")
		sb.WriteString(strconv.Itoa(b.dropped))
		sb.WriteString(" earlier lines omitted)\n")
	}
	for i, l := range b.lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(l.Text)
	}
	return sb.String()
}

// Contains reports whether any buffered line contains substr.
func (b *Buffer) Contains(substr string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, l := range b.lines {
		if strings.Contains(l.Text, substr) {
			return true
		}
	}
	return false
}

// MaxLineBytes caps a pending line. A longer run without a newline is
// delivered in MaxLineBytes pieces.
const MaxLineBytes = 64 * 1024

// Writer is an io.Writer that splits written bytes into lines and hands each
// complete line to fn. Call Flush after the producer is done to emit a trailing
// partial line. A Writer is safe for use by one producer at a time.
type Writer struct {
	mu     sync.Mutex
	stream Stream
	fn     func(Line)
	buf    []byte
}

// NewWriter returns a Writer for stream delivering lines to fn.
func NewWriter(stream Stream, fn func(Line)) *Writer {
	return &Writer{stream: stream, fn: fn}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= MaxLineBytes {
		w.emit(w.buf[:MaxLineBytes])
		w.buf = w.buf[MaxLineBytes:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *Writer) emit(b []byte) {
	text := strings.TrimRight(string(b), "\r")
	w.fn(Line{Time: time.Now(), Stream: w.stream, Text: text})
}
