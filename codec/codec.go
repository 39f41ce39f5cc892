// Package codec defines the boundary between the archive engine and the
// engine that actually compresses, encrypts, and lays out a container.
//
// The archive engine only ever sees plaintext: it hands a Writer one entry at
// a time and copies raw bytes into the returned sink, and it asks a Reader for
// entries in storage order and copies decoded bytes out of the returned
// source. Everything between those bytes and the container file belongs to
// the codec.
package codec

import (
	"io"
	"io/fs"
	"time"
)

// Entry is one file's record within a container.
type Entry struct {
	// Name is the canonical root-relative path, forward-slash separated.
	Name string

	// Size is the uncompressed payload length. Packers take it from file
	// metadata; readers report what the container claims.
	Size uint64

	// ModTime is the modification time. Containers store whole seconds.
	ModTime time.Time

	// Mode holds the permission bits.
	Mode fs.FileMode

	// IsDir marks directory placeholder records. Packers never emit them.
	IsDir bool

	// Method requests (when writing) or reports (when reading) how the
	// payload is compressed. MethodDefault lets the codec choose.
	Method Method

	// Encrypted reports whether the payload is encrypted. Set by readers.
	Encrypted bool

	// Index is the entry's position in container storage order. Set by readers.
	Index int
}

// Codec creates container writers and readers.
type Codec interface {
	// NewWriter starts a new container on dst.
	NewWriter(dst io.Writer) (Writer, error)

	// NewReader opens the container held by src.
	NewReader(src io.ReaderAt, size int64) (Reader, error)
}

// Writer appends entries to a container.
type Writer interface {
	// OpenWriteSink starts entry and returns a sink accepting its raw bytes.
	// An empty passphrase stores the entry unencrypted. Closing the sink
	// finalizes the entry's record; it never closes the container. Only one
	// sink may be open at a time.
	OpenWriteSink(entry Entry, passphrase string) (io.WriteCloser, error)

	// Close finishes the container. Whether the destination stream is
	// closed too depends on the writer's ownership setting.
	Close() error

	// Abort releases the writer without finishing the container, leaving
	// the destination in a state readers reject. It follows the same
	// ownership setting as Close. Abort after Close is a no-op.
	Abort() error
}

// Reader yields a container's entries one at a time.
type Reader interface {
	// Next returns the next entry in storage order, or io.EOF.
	Next() (Entry, error)

	// RequiresPassphrase reports whether entry cannot be read without one.
	RequiresPassphrase(entry Entry) bool

	// OpenReadSource returns the decoded bytes of entry. It fails with an
	// error matching ErrDecryption when a passphrase is missing or wrong.
	// Reading the source to EOF fails with ErrCorruptEntry when integrity
	// verification does not pass.
	OpenReadSource(entry Entry, passphrase string) (io.ReadCloser, error)

	// Close releases the reader. Whether the source stream is closed too
	// depends on the reader's ownership setting.
	Close() error
}
