package ziptree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ziptree/codec"
	zipcodec "github.com/meigma/ziptree/codec/zip"
	"github.com/meigma/ziptree/internal/entryname"
	"github.com/meigma/ziptree/internal/ownership"
	"github.com/meigma/ziptree/internal/platform"
	"github.com/meigma/ziptree/internal/streamcopy"
	"github.com/meigma/ziptree/internal/walk"
)

// Pack writes every regular file under req.Source into a new container at
// req.Output.
//
// Empty directories are not represented. Symbolic links and other
// non-regular files are skipped and never followed. When req.Passphrase is
// non-empty every entry is encrypted with it.
//
// On failure the partially written output file is left in place. It has no
// central directory, so readers reject it instead of extracting truncated
// entries.
func Pack(ctx context.Context, req PackRequest, opts ...PackOption) (stats PackStats, err error) {
	if req.Source == "" {
		return PackStats{}, errors.New("ziptree: pack: source directory is empty")
	}
	if req.Output == "" {
		return PackStats{}, errors.New("ziptree: pack: output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o750); err != nil {
		return PackStats{}, entryError("pack", req.Output, fmt.Errorf("create output directory: %w", err))
	}

	var stack ownership.Stack
	defer stack.CloseOnError(&err)

	f, err := os.Create(req.Output) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return PackStats{}, entryError("pack", req.Output, fmt.Errorf("create output: %w", err))
	}
	stack.Push("output "+req.Output, f)

	stats, err = Write(ctx, req.Source, f, req.Passphrase, opts...)
	if err != nil {
		return stats, err
	}
	if err := stack.Close(); err != nil {
		return stats, entryError("pack", req.Output, err)
	}
	return stats, nil
}

// Write packs every regular file under dir into a container written to dst.
// dst is not closed. On failure the container is aborted rather than
// finished.
func Write(ctx context.Context, dir string, dst io.Writer, passphrase string, opts ...PackOption) (stats PackStats, err error) {
	cfg := packConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	p, err := newPacker(&cfg, passphrase)
	if err != nil {
		return PackStats{}, err
	}

	start := time.Now()
	p.log().Info("pack started", "source", dir, "encrypted", passphrase != "")

	var stack ownership.Stack
	defer stack.CloseOnError(&err)

	root, err := os.OpenRoot(dir)
	if err != nil {
		return PackStats{}, entryError("pack", dir, fmt.Errorf("open source: %w", err))
	}
	stack.Push("source "+dir, root)
	p.root = root

	digester := digest.Canonical.Digester()
	out := p.written.Writer(io.MultiWriter(dst, digester.Hash()))
	cw, err := p.cfg.codec.NewWriter(out)
	if err != nil {
		return PackStats{}, entryError("pack", dir, fmt.Errorf("start container: %w", err))
	}
	container := &containerCloser{w: cw}
	stack.Push("container writer", container)
	p.w = cw

	visit := func(it walk.Item) error {
		return p.visit(ctx, it)
	}
	if err := walk.Walk(ctx, dir, entryname.RootOffset(dir), visit); err != nil {
		return p.stats, entryError("pack", dir, err)
	}

	p.cfg.progress.report(StageFinalizing, "", p.stats.Bytes, p.stats.Files)
	container.commit = true
	if err := stack.Close(); err != nil {
		return p.stats, entryError("pack", dir, err)
	}

	p.stats.ContainerSize = p.written.N()
	p.stats.Digest = digester.Digest()
	p.log().Info("pack finished",
		"files", p.stats.Files,
		"skipped", p.stats.Skipped,
		"bytes", p.stats.Bytes,
		"container_size", p.stats.ContainerSize,
		"digest", p.stats.Digest.String(),
		"duration", time.Since(start),
	)
	return p.stats, nil
}

// containerCloser finishes the container once committed and aborts it
// otherwise, so a failed pack never ends with a central directory.
type containerCloser struct {
	w      codec.Writer
	commit bool
}

func (c *containerCloser) Close() error {
	if c.commit {
		return c.w.Close()
	}
	return c.w.Abort()
}

// packer holds state for one pack invocation.
type packer struct {
	cfg        *packConfig
	passphrase string
	root       *os.Root
	w          codec.Writer
	buf        []byte
	maxFiles   int
	seen       map[string]string
	written    streamcopy.Counter
	stats      PackStats
}

func newPacker(cfg *packConfig, passphrase string) (*packer, error) {
	if cfg.codec == nil {
		cfg.codec = zipcodec.New()
	}
	buf, err := streamcopy.NewBuffer(cfg.chunkSize)
	if err != nil {
		return nil, fmt.Errorf("ziptree: pack: %w", err)
	}
	maxFiles := cfg.maxFiles
	if maxFiles == 0 {
		maxFiles = DefaultMaxFiles
	}
	p := &packer{
		cfg:        cfg,
		passphrase: passphrase,
		buf:        buf,
		maxFiles:   maxFiles,
	}
	if cfg.strictNames {
		p.seen = make(map[string]string)
	}
	return p, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (p *packer) log() *slog.Logger {
	if p.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.cfg.logger
}

// visit handles one enumerated child.
func (p *packer) visit(ctx context.Context, it walk.Item) error {
	switch it.Kind {
	case walk.KindDir:
		return nil
	case walk.KindOther:
		p.stats.Skipped++
		p.log().Debug("skipping non-regular file", "path", it.Path, "type", it.Entry.Type().String())
		return nil
	}

	name, err := entryname.Name(it.Path, it.Offset)
	if err != nil {
		return entryError("pack", it.Path, err)
	}
	if p.seen != nil {
		if prev, ok := p.seen[name]; ok {
			return entryError("pack", name, fmt.Errorf("%w: %s and %s", ErrDuplicateEntry, prev, it.Path))
		}
		p.seen[name] = it.Path
	}
	if p.maxFiles > 0 && p.stats.Files >= p.maxFiles {
		return entryError("pack", name, fmt.Errorf("%w: limit %d", ErrTooManyFiles, p.maxFiles))
	}

	n, skipped, err := p.packFile(ctx, it, name)
	if err != nil {
		return entryError("pack", name, err)
	}
	if skipped {
		p.stats.Skipped++
		return nil
	}
	p.stats.Files++
	p.stats.Bytes += n
	p.cfg.progress.report(StagePacking, name, p.stats.Bytes, p.stats.Files)
	return nil
}

// packFile streams one file into a new entry. It reports skipped when the
// path stopped being a regular file after enumeration.
func (p *packer) packFile(ctx context.Context, it walk.Item, name string) (n uint64, skipped bool, err error) {
	var stack ownership.Stack
	defer stack.CloseOnError(&err)

	f, err := platform.OpenRegular(p.root, it.Rel())
	if errors.Is(err, platform.ErrSymlink) || errors.Is(err, platform.ErrNotRegular) {
		p.log().Debug("skipping file replaced after enumeration", "path", it.Path, "reason", err)
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("open: %w", err)
	}
	stack.Push(it.Path, f)

	before, err := f.Stat()
	if err != nil {
		return 0, false, fmt.Errorf("stat: %w", err)
	}
	strict := p.cfg.changeDetection == ChangeDetectionStrict
	if strict {
		listed, err := it.Entry.Info()
		if err != nil {
			return 0, false, fmt.Errorf("stat: %w", err)
		}
		if !os.SameFile(listed, before) {
			return 0, false, errors.New("file replaced after enumeration")
		}
	}

	entry := codec.Entry{
		Name:    name,
		Size:    uint64(before.Size()), //nolint:gosec // regular file sizes are non-negative
		ModTime: before.ModTime().Truncate(time.Second),
		Mode:    before.Mode().Perm(),
	}
	if p.cfg.shouldStore(name, before) {
		entry.Method = codec.MethodStore
	}

	sink, err := p.w.OpenWriteSink(entry, p.passphrase)
	if err != nil {
		return 0, false, fmt.Errorf("open entry: %w", err)
	}
	stack.Push(name, sink)

	p.log().Debug("packing file", "name", name, "size", entry.Size, "method", entry.Method.String())
	n, err = streamcopy.Copy(ctx, sink, f, p.buf)
	if err != nil {
		return n, false, fmt.Errorf("copy: %w", err)
	}
	if n != entry.Size {
		return n, false, fmt.Errorf("file changed during packing: expected %d bytes, copied %d", entry.Size, n)
	}
	if strict {
		after, err := f.Stat()
		if err != nil {
			return n, false, fmt.Errorf("stat: %w", err)
		}
		if after.Size() != before.Size() || !after.ModTime().Equal(before.ModTime()) || after.Mode() != before.Mode() {
			return n, false, errors.New("file changed during packing")
		}
	}
	return n, false, stack.Close()
}
