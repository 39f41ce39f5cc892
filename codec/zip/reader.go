package zipcodec

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/ziptree/codec"
	"github.com/meigma/ziptree/internal/ownership"
)

// reader implements codec.Reader.
type reader struct {
	src    io.ReaderAt
	zr     *zip.Reader
	link   *ownership.Link
	next   int
	closed bool
}

func newReader(cfg *Codec, src io.ReaderAt, size int64) (*reader, error) {
	link := ownership.NewLink(src, cfg.owning)
	zr, err := zip.NewReader(src, size)
	// A usable reader that comes with an error only flags unsafe entry
	// names; those are rejected per entry by the caller.
	if err != nil && zr == nil {
		return nil, errors.Join(
			fmt.Errorf("%w: open zip container: %w", codec.ErrCorruptEntry, err),
			link.Close(),
		)
	}
	zr.RegisterDecompressor(methodZstd, zstd.ZipDecompressor())
	return &reader{src: src, zr: zr, link: link}, nil
}

// Next returns the next entry in storage order, or io.EOF.
func (r *reader) Next() (codec.Entry, error) {
	if r.closed {
		return codec.Entry{}, errors.New("zipcodec: reader closed")
	}
	if r.next >= len(r.zr.File) {
		return codec.Entry{}, io.EOF
	}
	idx := r.next
	r.next++
	return describe(r.zr.File[idx], idx), nil
}

func describe(f *zip.File, idx int) codec.Entry {
	e := codec.Entry{
		Name:      f.Name,
		Size:      f.UncompressedSize64,
		ModTime:   f.Modified,
		Mode:      f.Mode(),
		IsDir:     strings.HasSuffix(f.Name, "/"),
		Method:    methodFromID(f.Method),
		Encrypted: f.Flags&flagEncrypted != 0,
		Index:     idx,
	}
	if e.Encrypted && f.Method == aesMethod {
		if x, err := findAESExtra(f.Extra); err == nil {
			e.Method = methodFromID(x.method)
		}
	}
	return e
}

// RequiresPassphrase reports whether entry is encrypted.
func (r *reader) RequiresPassphrase(entry codec.Entry) bool {
	f, err := r.file(entry)
	if err != nil {
		return entry.Encrypted
	}
	return f.Flags&flagEncrypted != 0
}

// OpenReadSource returns the plaintext of entry. The returned stream reports
// codec.ErrCorruptEntry at end of stream when the checksum or authentication
// code does not match.
func (r *reader) OpenReadSource(entry codec.Entry, passphrase string) (io.ReadCloser, error) {
	if r.closed {
		return nil, errors.New("zipcodec: reader closed")
	}
	f, err := r.file(entry)
	if err != nil {
		return nil, err
	}
	if f.Flags&flagEncrypted == 0 {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, mapReadError(err))
		}
		return &source{r: rc, c: rc}, nil
	}
	if f.Method != aesMethod {
		return nil, fmt.Errorf("%w: %s: legacy ZIP encryption", codec.ErrUnsupported, f.Name)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("%w: %s", codec.ErrPassphraseRequired, f.Name)
	}
	return r.openEncrypted(f, passphrase)
}

func (r *reader) openEncrypted(f *zip.File, passphrase string) (io.ReadCloser, error) {
	x, err := findAESExtra(f.Extra)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", f.Name, err)
	}
	off, err := f.DataOffset()
	if err != nil {
		return nil, fmt.Errorf("locate entry %s: %w", f.Name, mapReadError(err))
	}
	section := io.NewSectionReader(r.src, off, int64(f.CompressedSize64)) //nolint:gosec // bounded by container size
	ar, err := newAESReader(section, passphrase, x)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", f.Name, err)
	}

	var plain io.ReadCloser
	switch x.method {
	case methodStore:
		plain = io.NopCloser(ar)
	case methodDeflate:
		plain = flate.NewReader(ar)
	case methodZstd:
		plain = zstd.ZipDecompressor()(ar)
	default:
		return nil, fmt.Errorf("%w: %s: method %d", codec.ErrUnsupported, f.Name, x.method)
	}

	cr := &checkReader{
		r:    plain,
		auth: ar,
		size: f.UncompressedSize64,
	}
	// AE-2 zeroes the CRC and relies on the authentication code alone.
	if x.vendor != aesVendorAE2 {
		cr.crc = crc32.NewIEEE()
		cr.want = f.CRC32
	}
	return &source{r: cr, c: plain}, nil
}

func (r *reader) file(entry codec.Entry) (*zip.File, error) {
	if entry.Index < 0 || entry.Index >= len(r.zr.File) {
		return nil, fmt.Errorf("zipcodec: entry index %d out of range", entry.Index)
	}
	f := r.zr.File[entry.Index]
	if f.Name != entry.Name {
		return nil, fmt.Errorf("zipcodec: entry %d is %q, not %q", entry.Index, f.Name, entry.Name)
	}
	return f, nil
}

// Close releases the source if owned.
func (r *reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.link.Close()
}

// source maps container errors onto codec errors.
type source struct {
	r io.Reader
	c io.Closer
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		err = mapReadError(err)
	}
	return n, err
}

func (s *source) Close() error {
	return s.c.Close()
}

// checkReader verifies size and CRC-32 of decrypted plaintext and drains the
// AES stream so its authentication code is checked.
type checkReader struct {
	r    io.Reader
	auth io.Reader
	crc  hash.Hash32
	want uint32
	size uint64
	n    uint64
	err  error
}

func (c *checkReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.r.Read(p)
	c.n += uint64(n) //nolint:gosec // n is never negative
	if c.crc != nil {
		c.crc.Write(p[:n])
	}
	if c.n > c.size {
		err = fmt.Errorf("%w: entry longer than declared", codec.ErrCorruptEntry)
	}
	if err == io.EOF {
		err = c.finish()
	}
	if err != nil {
		c.err = err
	}
	return n, err
}

func (c *checkReader) finish() error {
	if c.n != c.size {
		return fmt.Errorf("%w: got %d of %d bytes", codec.ErrCorruptEntry, c.n, c.size)
	}
	if _, err := io.Copy(io.Discard, c.auth); err != nil {
		return err
	}
	if c.crc != nil && c.crc.Sum32() != c.want {
		return fmt.Errorf("%w: checksum mismatch", codec.ErrCorruptEntry)
	}
	return io.EOF
}

func mapReadError(err error) error {
	switch {
	case errors.Is(err, codec.ErrCorruptEntry), errors.Is(err, codec.ErrUnsupported):
		return err
	case errors.Is(err, zip.ErrAlgorithm):
		return fmt.Errorf("%w: %w", codec.ErrUnsupported, err)
	case errors.Is(err, zip.ErrChecksum), errors.Is(err, zip.ErrFormat), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %w", codec.ErrCorruptEntry, err)
	}
	var ferr flate.CorruptInputError
	if errors.As(err, &ferr) {
		return fmt.Errorf("%w: %w", codec.ErrCorruptEntry, err)
	}
	return err
}
