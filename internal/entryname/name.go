// Package entryname converts filesystem paths into portable archive entry names
// and validates names read back out of a container.
//
// Entry names are always forward-slash separated, relative, and free of volume
// designators and parent-directory segments.
package entryname

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned when a path cannot be turned into a safe entry name.
var ErrInvalidPath = errors.New("ziptree: invalid entry path")

// Error describes why a path was rejected.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrInvalidPath, e.Path, e.Reason)
}

// Unwrap returns ErrInvalidPath.
func (e *Error) Unwrap() error {
	return ErrInvalidPath
}

// RootOffset returns the number of leading characters of a path under root that
// belong to root itself, including exactly one trailing separator.
func RootOffset(root string) int {
	if root == "" {
		return 0
	}
	if os.IsPathSeparator(root[len(root)-1]) {
		return len(root)
	}
	return len(root) + 1
}

// Name returns the entry name for path, dropping the first offset characters.
//
// Host separators become "/" and a volume designator at the start of path is
// stripped. Characters that only mean something on other hosts are not
// rewritten: a backslash, or a leading drive designator such as "C:" in a
// Unix file name, fails with ErrInvalidPath, since remapping it could give two
// files one name. The caller must only pass paths enumerated strictly under
// the root that produced offset; anything that would be empty or escape the
// root also fails with ErrInvalidPath.
func Name(path string, offset int) (string, error) {
	if offset < 0 || offset > len(path) {
		return "", &Error{Path: path, Reason: "root offset out of range"}
	}
	if vol := len(filepath.VolumeName(path)); offset < vol {
		offset = vol
	}
	s := path[offset:]
	if filepath.Separator != '/' {
		s = strings.ReplaceAll(s, string(filepath.Separator), "/")
	}
	if strings.ContainsRune(s, '\\') {
		return "", &Error{Path: path, Reason: "backslash in file name"}
	}
	if hasVolume(strings.TrimLeft(s, "/")) {
		return "", &Error{Path: path, Reason: "drive designator in file name"}
	}
	name, reason := canonical(s)
	if reason != "" {
		return "", &Error{Path: path, Reason: reason}
	}
	return name, nil
}

// Validate checks a name read from a container and returns its canonical form.
//
// Backslashes written by other tools are read as separators. Absolute names
// are rejected rather than stripped: a container naming "/etc/passwd" is
// hostile, not sloppy. A trailing "/" (directory placeholder) is removed from
// the result; callers check for it beforehand.
func Validate(name string) (string, error) {
	s := strings.ReplaceAll(name, `\`, "/")
	if strings.HasPrefix(s, "/") || hasVolume(s) {
		return "", &Error{Path: name, Reason: "absolute path"}
	}
	clean, reason := canonical(s)
	if reason != "" {
		return "", &Error{Path: name, Reason: reason}
	}
	return clean, nil
}

// IsDirPlaceholder reports whether a container name denotes a directory record.
func IsDirPlaceholder(name string) bool {
	return strings.HasSuffix(name, "/") || strings.HasSuffix(name, `\`)
}

// canonical strips leading and trailing slashes and collapses empty and "."
// segments of a slash-separated name. It returns a non-empty reason when the
// name is unusable.
func canonical(s string) (string, string) {
	s = strings.Trim(s, "/")

	parts := strings.Split(s, "/")
	out := parts[:0]
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", "parent directory segment"
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return "", "empty name"
	}
	return strings.Join(out, "/"), ""
}

func hasVolume(s string) bool {
	if len(s) < 2 || s[1] != ':' {
		return false
	}
	c := s[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
