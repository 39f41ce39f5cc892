// Package testutil provides shared helpers for ziptree tests.
package testutil

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// WriteTree creates files under root. Keys are slash-separated relative paths.
func WriteTree(t testing.TB, root string, files map[string][]byte) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, content, 0o644))
	}
}

// WriteStringTree is WriteTree for string contents.
func WriteStringTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	converted := make(map[string][]byte, len(files))
	for k, v := range files {
		converted[k] = []byte(v)
	}
	WriteTree(t, root, converted)
}

// ReadTree returns every regular file under root keyed by slash-separated
// relative path.
func ReadTree(t testing.TB, root string) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = content
		return nil
	})
	require.NoError(t, err)
	return out
}

// ReadStringTree is ReadTree with string contents.
func ReadStringTree(t testing.TB, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for k, v := range ReadTree(t, root) {
		out[k] = string(v)
	}
	return out
}

// ListDir returns the names directly under dir.
func ListDir(t testing.TB, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// SetModTime sets both access and modification times of path.
func SetModTime(t testing.TB, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

// ErrClosed is returned by tracked streams used after Close.
var ErrClosed = errors.New("testutil: stream closed")

// TrackedCloser records how many times it was closed.
type TrackedCloser struct {
	Closes int
	Err    error
	// OnClose, if set, runs on every Close.
	OnClose func()
}

// Close implements io.Closer.
func (c *TrackedCloser) Close() error {
	c.Closes++
	if c.OnClose != nil {
		c.OnClose()
	}
	return c.Err
}

// Closed reports whether Close was called at least once.
func (c *TrackedCloser) Closed() bool {
	return c.Closes > 0
}

// TrackedBuffer is an in-memory stream that records closure and refuses
// writes once closed.
type TrackedBuffer struct {
	bytes.Buffer
	TrackedCloser
}

// Write implements io.Writer.
func (b *TrackedBuffer) Write(p []byte) (int, error) {
	if b.Closed() {
		return 0, ErrClosed
	}
	return b.Buffer.Write(p)
}

// TrackedReaderAt is a random-access source that records closure.
type TrackedReaderAt struct {
	*bytes.Reader
	TrackedCloser
}

// NewTrackedReaderAt returns a TrackedReaderAt over data.
func NewTrackedReaderAt(data []byte) *TrackedReaderAt {
	return &TrackedReaderAt{Reader: bytes.NewReader(data)}
}

// CloseLog records the order in which streams are released.
type CloseLog struct {
	Events []string
}

// Add appends event.
func (l *CloseLog) Add(event string) {
	l.Events = append(l.Events, event)
}

// Hook returns a func that records event, for TrackedCloser.OnClose.
func (l *CloseLog) Hook(event string) func() {
	return func() { l.Add(event) }
}
