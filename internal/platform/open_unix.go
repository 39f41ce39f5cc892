//go:build unix

package platform

import (
	"errors"
	"os"
	"syscall"
)

// OpenRegular opens name under root for reading without following a final
// symbolic link. O_NONBLOCK keeps a FIFO from blocking the open; it is then
// rejected as not regular.
func OpenRegular(root *os.Root, name string) (*os.File, error) {
	// os.Root resolves links that stay inside the root, so check the final
	// component before opening it.
	if err := rejectSymlink(root, name); err != nil {
		return nil, err
	}
	f, err := root.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, ErrSymlink
		}
		return nil, err
	}
	return checkRegular(f)
}
