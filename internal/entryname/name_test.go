package entryname

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootOffset(t *testing.T) {
	sep := string(filepath.Separator)
	tests := []struct {
		root string
		want int
	}{
		{"", 0},
		{sep, 1},
		{sep + "data", 6},
		{sep + "data" + sep, 6},
	}
	for _, tt := range tests {
		t.Run(tt.root, func(t *testing.T) {
			assert.Equal(t, tt.want, RootOffset(tt.root))
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name string
		path string
		root string
		want string
	}{
		{"top level", "/data/Foo.txt", "/data", "Foo.txt"},
		{"root with separator", "/data/Foo.txt", "/data/", "Foo.txt"},
		{"nested", "/data/a/b/c.txt", "/data", "a/b/c.txt"},
		{"filesystem root", "/etc/hosts", "/", "etc/hosts"},
		{"dot segment", "/data/./a.txt", "/data", "a.txt"},
		{"double separator", "/data/a//b.txt", "/data", "a/b.txt"},
		{"colon inside a segment", "/data/a/C:x.txt", "/data", "a/C:x.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.FromSlash(tt.path)
			got, err := Name(path, RootOffset(filepath.FromSlash(tt.root)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNameRejects(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		offset int
	}{
		{"empty remainder", "/data/", 6},
		{"root itself", "/data", 6},
		{"parent segment", "/data/../etc/passwd", 6},
		{"nested parent segment", "/data/a/../../b", 6},
		{"negative offset", "/data/a", -1},
		{"offset past end", "/data/a", 20},
		{"only separators", "/data////", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.FromSlash(tt.path)
			_, err := Name(path, tt.offset)
			require.ErrorIs(t, err, ErrInvalidPath)
			var nameErr *Error
			require.ErrorAs(t, err, &nameErr)
			assert.Equal(t, path, nameErr.Path)
		})
	}
}

func TestNameCanonicalUnderRoot(t *testing.T) {
	root := t.TempDir()
	offset := RootOffset(root)
	rels := []string{
		"a.txt",
		filepath.Join("x", "y", "z.bin"),
		filepath.Join("deep", "er", "still", "deeper", "f"),
		"name with spaces.txt",
		"ünïcødé.txt",
	}
	for _, rel := range rels {
		got, err := Name(filepath.Join(root, rel), offset)
		require.NoError(t, err)
		assert.NotEmpty(t, got)
		assert.NotContains(t, got, `\`)
		assert.False(t, strings.HasPrefix(got, "/"))
		assert.False(t, hasVolume(got))
		for _, seg := range strings.Split(got, "/") {
			assert.NotEqual(t, "..", seg)
		}
		assert.Equal(t, filepath.ToSlash(rel), got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"simple", "Foo.txt", "Foo.txt", false},
		{"nested", "a/b/c.txt", "a/b/c.txt", false},
		{"backslashes", `a\b\c.txt`, "a/b/c.txt", false},
		{"dot segments", "a/./b.txt", "a/b.txt", false},
		{"directory placeholder", "a/b/", "a/b", false},
		{"zip slip", "../pwned.txt", "", true},
		{"nested zip slip", "a/../../pwned.txt", "", true},
		{"backslash zip slip", `..\pwned.txt`, "", true},
		{"absolute", "/etc/passwd", "", true},
		{"drive", `C:\Windows\win.ini`, "", true},
		{"empty", "", "", true},
		{"slash only", "/", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDirPlaceholder(t *testing.T) {
	assert.True(t, IsDirPlaceholder("a/"))
	assert.True(t, IsDirPlaceholder(`a\`))
	assert.False(t, IsDirPlaceholder("a"))
	assert.False(t, IsDirPlaceholder("a/b.txt"))
}
