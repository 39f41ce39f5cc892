package walk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ziptree/internal/entryname"
	"github.com/meigma/ziptree/internal/testutil"
)

type visited struct {
	name string
	kind Kind
}

func collect(t *testing.T, dir string) []visited {
	t.Helper()
	var out []visited
	offset := entryname.RootOffset(dir)
	err := Walk(context.Background(), dir, offset, func(it Item) error {
		name, err := entryname.Name(it.Path, it.Offset)
		if err != nil {
			return err
		}
		out = append(out, visited{name: name, kind: it.Kind})
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestWalkOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteStringTree(t, dir, map[string]string{
		"b.txt":         "b",
		"a.txt":         "a",
		"zdir/z.txt":    "z",
		"adir/y.txt":    "y",
		"adir/sub/x.md": "x",
		"m.txt":         "m",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0o750))

	got := collect(t, dir)
	assert.Equal(t, []visited{
		{"a.txt", KindFile},
		{"b.txt", KindFile},
		{"m.txt", KindFile},
		{"adir", KindDir},
		{"adir/y.txt", KindFile},
		{"adir/sub", KindDir},
		{"adir/sub/x.md", KindFile},
		{"empty", KindDir},
		{"zdir", KindDir},
		{"zdir/z.txt", KindFile},
	}, got)
}

func TestWalkIsDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteStringTree(t, dir, map[string]string{
		"one/two/three.txt": "3",
		"one/1.txt":         "1",
		"top.txt":           "t",
	})
	assert.Equal(t, collect(t, dir), collect(t, dir))
}

func TestWalkTrailingSeparator(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteStringTree(t, dir, map[string]string{"Bar/Bar.txt": "b"})

	got := collect(t, dir+string(filepath.Separator))
	assert.Equal(t, []visited{{"Bar", KindDir}, {"Bar/Bar.txt", KindFile}}, got)
}

func TestWalkSymlinksAreOther(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	dir := t.TempDir()
	testutil.WriteStringTree(t, dir, map[string]string{"real/file.txt": "f"})
	require.NoError(t, os.Symlink(filepath.Join(dir, "real"), filepath.Join(dir, "linkdir")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "real", "file.txt"), filepath.Join(dir, "link.txt")))

	got := collect(t, dir)
	assert.Equal(t, []visited{
		{"link.txt", KindOther},
		{"linkdir", KindOther},
		{"real", KindDir},
		{"real/file.txt", KindFile},
	}, got)
}

func TestWalkStopsOnVisitError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteStringTree(t, dir, map[string]string{"a": "a", "b": "b"})

	stop := errors.New("stop")
	calls := 0
	err := Walk(context.Background(), dir, entryname.RootOffset(dir), func(Item) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWalkHonorsContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteStringTree(t, dir, map[string]string{"a": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Walk(ctx, dir, entryname.RootOffset(dir), func(Item) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestWalkRejectsNonDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteStringTree(t, dir, map[string]string{"file": "x"})
	path := filepath.Join(dir, "file")

	err := Walk(context.Background(), path, entryname.RootOffset(path), func(Item) error { return nil })
	require.Error(t, err)

	err = Walk(context.Background(), filepath.Join(dir, "missing"), 0, func(Item) error { return nil })
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestItemRel(t *testing.T) {
	t.Parallel()

	it := Item{Path: filepath.Join("root", "a", "b.txt"), Offset: len("root") + 1}
	assert.Equal(t, filepath.Join("a", "b.txt"), it.Rel())
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "dir", KindDir.String())
	assert.Equal(t, "other", KindOther.String())
}
