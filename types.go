package ziptree

import (
	"github.com/opencontainers/go-digest"

	"github.com/meigma/ziptree/codec"
)

// Entry is one file's record within a container.
type Entry = codec.Entry

// PackRequest describes a pack invocation.
type PackRequest struct {
	// Output is the container file to create. Its parent directory is
	// created if needed and an existing file is truncated.
	Output string

	// Passphrase encrypts every entry when non-empty.
	Passphrase string

	// Source is the directory whose descendants are packed. Source itself
	// is not represented in entry names.
	Source string
}

// UnpackRequest describes an unpack invocation.
type UnpackRequest struct {
	// Archive is the container file to read.
	Archive string

	// Passphrase decrypts encrypted entries.
	Passphrase string

	// Destination is removed if it exists, then recreated and filled.
	Destination string
}

// PackStats summarizes a completed pack.
type PackStats struct {
	// Files is the number of entries written.
	Files int

	// Bytes is the total uncompressed payload written.
	Bytes uint64

	// Skipped counts children that were not packed: symbolic links,
	// devices, and other non-regular files.
	Skipped int

	// ContainerSize is the number of container bytes produced.
	ContainerSize uint64

	// Digest is the sha256 digest of the container bytes.
	Digest digest.Digest
}

// UnpackStats summarizes a completed unpack.
type UnpackStats struct {
	// Files is the number of files extracted.
	Files int

	// Bytes is the total payload extracted.
	Bytes uint64

	// Skipped counts directory placeholder records.
	Skipped int
}
