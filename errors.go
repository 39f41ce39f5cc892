package ziptree

import (
	"context"
	"errors"
	"fmt"

	"github.com/meigma/ziptree/codec"
	"github.com/meigma/ziptree/internal/entryname"
)

// Errors shared with the packages that detect them.
var (
	// ErrInvalidPath is returned when a path cannot become a safe entry name,
	// or a container names an entry outside the destination.
	ErrInvalidPath = entryname.ErrInvalidPath

	// ErrDecryption matches both ErrPassphraseRequired and ErrWrongPassphrase.
	ErrDecryption = codec.ErrDecryption

	// ErrPassphraseRequired is returned when an encrypted entry is read
	// without a passphrase.
	ErrPassphraseRequired = codec.ErrPassphraseRequired

	// ErrWrongPassphrase is returned when the passphrase does not decrypt an entry.
	ErrWrongPassphrase = codec.ErrWrongPassphrase

	// ErrCorruptEntry is returned when an entry fails checksum or
	// authentication, or its length differs from the declared size.
	ErrCorruptEntry = codec.ErrCorruptEntry

	// ErrUnsupported is returned for compression or encryption schemes the
	// codec cannot handle.
	ErrUnsupported = codec.ErrUnsupported
)

// Errors specific to the ziptree package.
var (
	// ErrIO is the class of filesystem and stream failures.
	ErrIO = errors.New("ziptree: i/o error")

	// ErrDuplicateEntry is returned in strict-name mode when two files map
	// to the same entry name.
	ErrDuplicateEntry = errors.New("ziptree: duplicate entry name")

	// ErrTooManyFiles is returned when the file count exceeds the configured limit.
	ErrTooManyFiles = errors.New("ziptree: too many files")

	// ErrDigestMismatch is returned when a container does not match the
	// expected digest.
	ErrDigestMismatch = errors.New("ziptree: container digest mismatch")
)

// EntryError records a failure while packing or unpacking one entry.
//
// It matches both its Kind sentinel and the underlying error, so
// errors.Is(err, ErrIO) and errors.Is(err, fs.ErrNotExist) can both hold.
type EntryError struct {
	// Op is "pack" or "unpack".
	Op string
	// Name is the entry name, or the filesystem path when no name exists yet.
	Name string
	// Kind is the sentinel classifying the failure. It is nil when Err
	// already matches a sentinel.
	Kind error
	// Err is the underlying error.
	Err error
}

func (e *EntryError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("ziptree: %s %s: %v: %v", e.Op, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("ziptree: %s %s: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the classification and the underlying error.
func (e *EntryError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

var classified = []error{
	ErrInvalidPath,
	ErrDecryption,
	ErrCorruptEntry,
	ErrUnsupported,
	ErrIO,
	ErrDuplicateEntry,
	ErrTooManyFiles,
	ErrDigestMismatch,
	context.Canceled,
	context.DeadlineExceeded,
}

// entryError wraps err with entry context. Errors that do not already match
// a sentinel are classified as ErrIO.
func entryError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EntryError
	if errors.As(err, &ee) {
		return err
	}
	e := &EntryError{Op: op, Name: name, Err: err}
	for _, s := range classified {
		if errors.Is(err, s) {
			return e
		}
	}
	e.Kind = ErrIO
	return e
}
