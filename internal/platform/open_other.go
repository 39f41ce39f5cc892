//go:build !unix

package platform

import "os"

// OpenRegular opens name under root for reading. Symbolic links are detected
// with Lstat because the platform has no O_NOFOLLOW.
func OpenRegular(root *os.Root, name string) (*os.File, error) {
	if err := rejectSymlink(root, name); err != nil {
		return nil, err
	}
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	return checkRegular(f)
}
