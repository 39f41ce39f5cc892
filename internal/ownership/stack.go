// Package ownership tracks the streams an operation has opened and releases
// them exactly once, innermost first, on every exit path.
package ownership

import (
	"errors"
	"fmt"
	"io"
)

type held struct {
	name string
	c    io.Closer
}

// Stack holds closers in acquisition order. Close releases them in reverse.
//
// The zero value is ready to use. A Stack is owned by a single goroutine.
type Stack struct {
	held []held
}

// Push records c as acquired. name identifies the stream in close errors.
func (s *Stack) Push(name string, c io.Closer) {
	s.held = append(s.held, held{name: name, c: c})
}

// Len returns the number of streams still held.
func (s *Stack) Len() int {
	return len(s.held)
}

// Pop closes and releases the most recently pushed stream.
// It is a no-op on an empty stack.
func (s *Stack) Pop() error {
	if len(s.held) == 0 {
		return nil
	}
	top := s.held[len(s.held)-1]
	s.held = s.held[:len(s.held)-1]
	if err := top.c.Close(); err != nil {
		return fmt.Errorf("close %s: %w", top.name, err)
	}
	return nil
}

// Close releases every held stream in reverse acquisition order.
// All streams are closed even if some fail; the failures are joined.
// Calling Close again is a no-op.
func (s *Stack) Close() error {
	var errs []error
	for len(s.held) > 0 {
		if err := s.Pop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseOnError is meant to be deferred with a pointer to the caller's named
// error result. When the caller failed it releases everything and folds
// release failures into the returned error; on success it does nothing so the
// caller's explicit Close result stands.
func (s *Stack) CloseOnError(errp *error) {
	if *errp == nil {
		return
	}
	if cerr := s.Close(); cerr != nil {
		*errp = errors.Join(*errp, cerr)
	}
}
