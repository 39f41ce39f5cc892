// Package zipcodec implements codec.Codec on top of the ZIP container format.
//
// Entries are compressed with Deflate (default), stored, or compressed with
// Zstandard (method 93). Entries packed with a passphrase are encrypted with
// WinZip AES-256 (method 99, AE-1), which standard tools such as 7-Zip and
// WinZip can read.
package zipcodec

import (
	"crypto/rand"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/ziptree/codec"
)

// ZIP method identifiers.
const (
	methodStore   = zip.Store
	methodDeflate = zip.Deflate
	methodZstd    = uint16(zstd.ZipMethodWinZip)
)

// Interface compliance.
var _ codec.Codec = (*Codec)(nil)

// Codec creates ZIP writers and readers.
type Codec struct {
	method codec.Method
	level  int
	random io.Reader
	owning bool
}

// Option configures a Codec.
type Option func(*Codec)

// WithMethod sets the compression method used for entries that do not
// request one. MethodDefault keeps Deflate.
func WithMethod(m codec.Method) Option {
	return func(c *Codec) {
		if m != codec.MethodDefault {
			c.method = m
		}
	}
}

// WithLevel sets the Deflate compression level (flate.HuffmanOnly through
// flate.BestCompression). The default is flate.DefaultCompression.
func WithLevel(level int) Option {
	return func(c *Codec) {
		c.level = level
	}
}

// WithRandom sets the source of AES salts. The default is crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) {
		c.random = r
	}
}

// WithOwnership controls whether closing a writer or reader also closes the
// stream it wraps. By default the wrapped stream is left open.
func WithOwnership(owning bool) Option {
	return func(c *Codec) {
		c.owning = owning
	}
}

// New returns a ZIP codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		method: codec.MethodDeflate,
		level:  flate.DefaultCompression,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Method returns the method used for entries that do not request one.
func (c *Codec) Method() codec.Method {
	return c.method
}

// Owning reports whether writers and readers close their wrapped streams.
func (c *Codec) Owning() bool {
	return c.owning
}

// NewWriter starts a ZIP container on dst.
func (c *Codec) NewWriter(dst io.Writer) (codec.Writer, error) {
	return newWriter(c, dst), nil
}

// NewReader opens the ZIP container held by src.
func (c *Codec) NewReader(src io.ReaderAt, size int64) (codec.Reader, error) {
	return newReader(c, src, size)
}

func methodID(m codec.Method) (uint16, bool) {
	switch m {
	case codec.MethodStore:
		return methodStore, true
	case codec.MethodDeflate:
		return methodDeflate, true
	case codec.MethodZstd:
		return methodZstd, true
	default:
		return 0, false
	}
}

func methodFromID(id uint16) codec.Method {
	switch id {
	case methodStore:
		return codec.MethodStore
	case methodDeflate:
		return codec.MethodDeflate
	case methodZstd:
		return codec.MethodZstd
	default:
		return codec.MethodDefault
	}
}
