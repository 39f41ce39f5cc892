package streamcopy

import "io"

// Counter tallies the bytes flowing through the readers and writers it wraps.
// A Counter is not safe for concurrent use.
type Counter struct {
	n uint64
}

// N returns the number of bytes counted so far.
func (c *Counter) N() uint64 {
	return c.n
}

func (c *Counter) add(n int) error {
	if n <= 0 {
		return nil
	}
	//nolint:gosec // n is positive, checked above
	if c.n > ^uint64(0)-uint64(n) {
		return ErrOverflow
	}
	c.n += uint64(n) //nolint:gosec // overflow checked above
	return nil
}

// Reader returns r wrapped so every byte read is counted.
func (c *Counter) Reader(r io.Reader) io.Reader {
	return &countingReader{r: r, c: c}
}

// Writer returns w wrapped so every byte written is counted.
func (c *Counter) Writer(w io.Writer) io.Writer {
	return &countingWriter{w: w, c: c}
}

type countingReader struct {
	r io.Reader
	c *Counter
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if cerr := cr.c.add(n); cerr != nil {
		return n, cerr
	}
	return n, err
}

type countingWriter struct {
	w io.Writer
	c *Counter
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if cerr := cw.c.add(n); cerr != nil {
		return n, cerr
	}
	return n, err
}
