// Package streamcopy moves bytes between a source and a sink in fixed-size
// chunks so peak memory stays bounded by the chunk size.
package streamcopy

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the reference chunk size for entry transfers.
const DefaultChunkSize = 4096

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

// ErrOverflow indicates a byte counter exceeded its maximum value.
var ErrOverflow = errors.New("streamcopy: counter overflow")

// NewBuffer allocates a chunk buffer. Size must be at least one byte;
// zero selects DefaultChunkSize.
func NewBuffer(size int) ([]byte, error) {
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < 1 {
		return nil, fmt.Errorf("streamcopy: invalid chunk size %d", size)
	}
	return make([]byte, size), nil
}

// Copy copies from src to dst one chunk at a time until src reports io.EOF.
//
// Each chunk is written in full before the next read is issued. The first
// read or write failure aborts the copy and is returned unchanged together
// with the number of bytes already written; nothing is retried. The context
// is checked between chunks.
//
//nolint:gocognit // Follows stdlib io.Copy pattern; complexity is inherent to correct I/O handling
func Copy(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (uint64, error) {
	if len(buf) == 0 {
		return 0, errors.New("streamcopy: empty buffer")
	}
	var written uint64
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, er := src.Read(buf)
		if nr > 0 {
			empty = 0
			nw, ew := dst.Write(buf[:nr])
			if nw < 0 || nw > nr {
				return written, errors.New("streamcopy: invalid write result")
			}
			if nw > 0 {
				//nolint:gosec // nw is non-negative, checked above
				if written > ^uint64(0)-uint64(nw) {
					return written, ErrOverflow
				}
				written += uint64(nw) //nolint:gosec // overflow checked above
			}
			if ew != nil {
				return written, ew
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		} else if er == nil {
			empty++
			if empty >= maxEmptyReads {
				return written, io.ErrNoProgress
			}
		}
		if er != nil {
			if er == io.EOF {
				return written, nil
			}
			return written, er
		}
	}
}
