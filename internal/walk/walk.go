// Package walk enumerates a directory tree in the order the packer stores it.
//
// Each directory contributes its non-directory children first, in name
// order, followed by its subdirectories, each fully expanded before the next
// sibling. Symbolic links are reported as KindOther and never followed.
package walk

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Kind classifies a directory child at enumeration time.
type Kind uint8

const (
	// KindFile is a regular file.
	KindFile Kind = iota
	// KindDir is a directory.
	KindDir
	// KindOther is anything else: symbolic links, devices, sockets, pipes.
	KindOther
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// Item is one enumerated child.
type Item struct {
	// Path is the child's path, prefixed by the directory given to Walk.
	Path string
	// Offset is the length of the root prefix in Path, separator included.
	Offset int
	// Kind is the child's classification.
	Kind Kind
	// Entry is the directory entry the child was read from.
	Entry fs.DirEntry
}

// Rel returns the path relative to the walk root, in OS form.
func (it Item) Rel() string {
	return it.Path[it.Offset:]
}

// VisitFunc is called once per child. Returning an error stops the walk.
type VisitFunc func(Item) error

// Walk enumerates every descendant of dir. offset is the number of leading
// characters of each path that belong to dir itself; see entryname.RootOffset.
func Walk(ctx context.Context, dir string, offset int, visit VisitFunc) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "walk", Path: dir, Err: fs.ErrInvalid}
	}
	return walkDir(ctx, dir, offset, visit)
}

func walkDir(ctx context.Context, dir string, offset int, visit VisitFunc) error {
	children, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", dir, err)
	}

	var subdirs []Item
	for _, d := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		it := Item{
			Path:   join(dir, d.Name()),
			Offset: offset,
			Kind:   classify(d.Type()),
			Entry:  d,
		}
		if it.Kind == KindDir {
			subdirs = append(subdirs, it)
			continue
		}
		if err := visit(it); err != nil {
			return err
		}
	}

	for _, it := range subdirs {
		if err := visit(it); err != nil {
			return err
		}
		if err := walkDir(ctx, it.Path, offset, visit); err != nil {
			return err
		}
	}
	return nil
}

// join appends name to dir without cleaning, so every path keeps the exact
// root prefix the offset was computed from.
func join(dir, name string) string {
	if dir != "" && os.IsPathSeparator(dir[len(dir)-1]) {
		return dir + name
	}
	return dir + string(filepath.Separator) + name
}

func classify(t fs.FileMode) Kind {
	switch {
	case t.IsRegular():
		return KindFile
	case t.IsDir():
		return KindDir
	default:
		return KindOther
	}
}
