// Package platform holds the few filesystem calls that differ between
// operating systems.
package platform

import (
	"errors"
	"io/fs"
	"os"
)

var (
	// ErrSymlink is returned when the opened path is a symbolic link.
	ErrSymlink = errors.New("symbolic link")

	// ErrNotRegular is returned when the opened path is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
)

func checkRegular(f *os.File) (*os.File, error) {
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // the stat error is reported
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close() //nolint:errcheck // the type error is reported
		return nil, ErrNotRegular
	}
	return f, nil
}

func rejectSymlink(root *os.Root, name string) error {
	info, err := root.Lstat(name)
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return ErrSymlink
	}
	return nil
}
