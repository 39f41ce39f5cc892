package zipcodec

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/ziptree/codec"
	"github.com/meigma/ziptree/internal/ownership"
)

var errSinkOpen = errors.New("zipcodec: previous entry sink still open")

// writer implements codec.Writer.
//
// Every compressor the zip.Writer asks for is wrapped in a finisher and
// remembered as current, so closing an entry sink flushes the entry's payload
// (compressor trailer, AES authentication code) immediately instead of when
// the next entry starts. The zip.Writer later closes the finisher again as a
// no-op and only appends its data descriptor.
type writer struct {
	zw      *zip.Writer
	link    *ownership.Link
	cfg     *Codec
	current *finisher
	open    *sink
	pending *encryption
	closed  bool
}

// encryption carries the parameters for the next AES compressor call.
type encryption struct {
	passphrase string
	inner      uint16
}

func newWriter(cfg *Codec, dst io.Writer) *writer {
	w := &writer{
		zw:   zip.NewWriter(dst),
		link: ownership.NewLink(dst, cfg.owning),
		cfg:  cfg,
	}
	w.zw.RegisterCompressor(methodStore, w.track(func(out io.Writer) (io.WriteCloser, error) {
		return nopWriteCloser{out}, nil
	}))
	w.zw.RegisterCompressor(methodDeflate, w.track(func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, cfg.level)
	}))
	w.zw.RegisterCompressor(methodZstd, w.track(zstd.ZipCompressor(
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)))
	w.zw.RegisterCompressor(aesMethod, w.track(w.encryptor))
	return w
}

// track wraps a compressor factory so the produced stream becomes current.
func (w *writer) track(factory zip.Compressor) zip.Compressor {
	return func(out io.Writer) (io.WriteCloser, error) {
		wc, err := factory(out)
		if err != nil {
			return nil, err
		}
		w.current = &finisher{wc: wc}
		return w.current, nil
	}
}

// encryptor is the method 99 compressor: plaintext is compressed with the
// entry's real method, then encrypted.
func (w *writer) encryptor(out io.Writer) (io.WriteCloser, error) {
	enc := w.pending
	w.pending = nil
	if enc == nil {
		return nil, errors.New("zipcodec: encrypted entry without parameters")
	}
	aw, err := newAESWriter(out, enc.passphrase, aesWriteStrength, w.cfg.random)
	if err != nil {
		return nil, err
	}
	var comp io.WriteCloser
	switch enc.inner {
	case methodStore:
		comp = nopWriteCloser{aw}
	case methodDeflate:
		comp, err = flate.NewWriter(aw, w.cfg.level)
	case methodZstd:
		comp, err = zstd.NewWriter(aw, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	default:
		err = fmt.Errorf("%w: method %d", codec.ErrUnsupported, enc.inner)
	}
	if err != nil {
		return nil, err
	}
	return &chainCloser{outer: comp, inner: aw}, nil
}

// OpenWriteSink starts a new entry.
func (w *writer) OpenWriteSink(entry codec.Entry, passphrase string) (io.WriteCloser, error) {
	if w.closed {
		return nil, errors.New("zipcodec: writer closed")
	}
	if w.open != nil && !w.open.closed {
		return nil, errSinkOpen
	}
	if entry.IsDir {
		return nil, fmt.Errorf("zipcodec: %s: directory entries are implicit", entry.Name)
	}

	method := entry.Method
	if method == codec.MethodDefault {
		method = w.cfg.method
	}
	id, ok := methodID(method)
	if !ok {
		return nil, fmt.Errorf("%w: method %s", codec.ErrUnsupported, method)
	}

	fh := &zip.FileHeader{
		Name:     entry.Name,
		Method:   id,
		Modified: entry.ModTime,
	}
	if perm := entry.Mode.Perm(); perm != 0 {
		fh.SetMode(perm)
	}
	if passphrase != "" {
		fh.Method = aesMethod
		fh.Flags |= flagEncrypted
		fh.Extra = append(fh.Extra, aesExtra{
			vendor:   aesVendorAE1,
			strength: aesWriteStrength,
			method:   id,
		}.encode()...)
		w.pending = &encryption{passphrase: passphrase, inner: id}
	}

	w.current = nil
	zf, err := w.zw.CreateHeader(fh)
	w.pending = nil
	if err != nil {
		return nil, fmt.Errorf("create entry %s: %w", entry.Name, err)
	}
	w.open = &sink{w: zf, fin: w.current, name: entry.Name}
	return w.open, nil
}

// Close writes the central directory and releases the destination if owned.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	if w.open != nil && !w.open.closed {
		errs = append(errs, w.open.Close())
	}
	if err := w.zw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finish zip container: %w", err))
	}
	if err := w.link.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close destination: %w", err))
	}
	return errors.Join(errs...)
}

// Abort releases the writer without writing the central directory, so a
// failed container cannot be mistaken for a complete one.
func (w *writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.open != nil && !w.open.closed {
		// Releases the compressor; the container is discarded either way.
		_ = w.open.Close() //nolint:errcheck // the operation already failed
	}
	if err := w.link.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

// sink is the per-entry write side handed to the archive engine.
type sink struct {
	w      io.Writer
	fin    *finisher
	name   string
	closed bool
}

func (s *sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("zipcodec: %s: write after close", s.name)
	}
	return s.w.Write(p)
}

// Close flushes the entry's payload. The container stays open.
func (s *sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.fin == nil {
		return nil
	}
	if err := s.fin.Close(); err != nil {
		return fmt.Errorf("finish entry %s: %w", s.name, err)
	}
	return nil
}

// finisher makes a compressor's Close idempotent.
type finisher struct {
	wc     io.WriteCloser
	closed bool
	err    error
}

func (f *finisher) Write(p []byte) (int, error) {
	return f.wc.Write(p)
}

func (f *finisher) Close() error {
	if f.closed {
		return f.err
	}
	f.closed = true
	f.err = f.wc.Close()
	return f.err
}

// chainCloser closes a compressor before the encrypting stream beneath it.
type chainCloser struct {
	outer io.WriteCloser
	inner io.Closer
}

func (c *chainCloser) Write(p []byte) (int, error) {
	return c.outer.Write(p)
}

func (c *chainCloser) Close() error {
	return errors.Join(c.outer.Close(), c.inner.Close())
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}
