//go:build unix

package entryname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backslashes and drive prefixes are ordinary characters in Unix file names.
// Rewriting them would map distinct files onto one entry.
func TestNameRejectsForeignSeparators(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		reason string
	}{
		{"backslash", `/data/a\b.txt`, "backslash in file name"},
		{"lone backslash", `/data/\`, "backslash in file name"},
		{"backslash in directory", `/data/x\y/f.txt`, "backslash in file name"},
		{"drive prefix", "/data/C:x.txt", "drive designator in file name"},
		{"drive prefix directory", "/data/d:/f.txt", "drive designator in file name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Name(tt.path, RootOffset("/data"))
			require.ErrorIs(t, err, ErrInvalidPath)
			var nameErr *Error
			require.ErrorAs(t, err, &nameErr)
			assert.Equal(t, tt.path, nameErr.Path)
			assert.Equal(t, tt.reason, nameErr.Reason)
		})
	}
}

func TestNameDriveLikeFileBesidePlainFile(t *testing.T) {
	plain, err := Name("/data/x.txt", RootOffset("/data"))
	require.NoError(t, err)
	assert.Equal(t, "x.txt", plain)

	_, err = Name("/data/C:x.txt", RootOffset("/data"))
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestRootOffsetBackslashIsNotASeparator(t *testing.T) {
	assert.Equal(t, len(`/data\`)+1, RootOffset(`/data\`))
}
