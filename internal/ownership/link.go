package ownership

import (
	"io"
	"sync"
)

// Link ties a stream to the stream it wraps.
//
// When owning, closing the Link closes the wrapped stream; otherwise the
// wrapped stream is left open for its caller. Either way the wrapped stream
// is closed at most once.
type Link struct {
	inner io.Closer
	owner bool
	once  sync.Once
	err   error
}

// NewLink returns a Link over inner. inner may be nil or any value; it is only
// closed when owning is true and it implements io.Closer.
func NewLink(inner any, owning bool) *Link {
	c, _ := inner.(io.Closer)
	return &Link{inner: c, owner: owning && c != nil}
}

// Owning reports whether closing the Link closes the wrapped stream.
func (l *Link) Owning() bool {
	return l.owner
}

// Close closes the wrapped stream if the Link owns it.
func (l *Link) Close() error {
	l.once.Do(func() {
		if l.owner {
			l.err = l.inner.Close()
		}
	})
	return l.err
}
