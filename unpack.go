package ziptree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ziptree/codec"
	zipcodec "github.com/meigma/ziptree/codec/zip"
	"github.com/meigma/ziptree/internal/entryname"
	"github.com/meigma/ziptree/internal/ownership"
	"github.com/meigma/ziptree/internal/streamcopy"
)

// Unpack extracts the container at req.Archive into req.Destination.
//
// If the destination exists it is removed recursively and recreated before
// any entry is written. A destination that contains the archive is refused. Entries are processed in storage order; directory
// placeholder records are skipped. An entry whose decryption fails leaves
// no file behind. Entries extracted before a failure are left in place.
func Unpack(ctx context.Context, req UnpackRequest, opts ...UnpackOption) (stats UnpackStats, err error) {
	if req.Archive == "" {
		return UnpackStats{}, errors.New("ziptree: unpack: archive path is empty")
	}
	if target, err := cleanTarget(req.Destination); err == nil && containsPath(target, req.Archive) {
		return UnpackStats{}, fmt.Errorf("ziptree: unpack: destination %q contains the archive %q", target, req.Archive)
	}

	var stack ownership.Stack
	defer stack.CloseOnError(&err)

	f, err := os.Open(req.Archive)
	if err != nil {
		return UnpackStats{}, entryError("unpack", req.Archive, fmt.Errorf("open archive: %w", err))
	}
	stack.Push("archive "+req.Archive, f)

	info, err := f.Stat()
	if err != nil {
		return UnpackStats{}, entryError("unpack", req.Archive, fmt.Errorf("stat archive: %w", err))
	}

	stats, err = Read(ctx, f, info.Size(), req.Destination, req.Passphrase, opts...)
	if err != nil {
		return stats, err
	}
	if err := stack.Close(); err != nil {
		return stats, entryError("unpack", req.Archive, err)
	}
	return stats, nil
}

// Read extracts the container held by src into dir, with the same
// destination handling as Unpack. src is not closed.
func Read(ctx context.Context, src io.ReaderAt, size int64, dir, passphrase string, opts ...UnpackOption) (stats UnpackStats, err error) {
	cfg := unpackConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	u, err := newUnpacker(&cfg, passphrase)
	if err != nil {
		return UnpackStats{}, err
	}
	target, err := cleanTarget(dir)
	if err != nil {
		return UnpackStats{}, err
	}

	start := time.Now()
	u.log().Info("unpack started", "destination", target, "size", size)

	if cfg.expectedDigest != "" {
		if err := verifyDigest(src, size, cfg.expectedDigest); err != nil {
			return UnpackStats{}, err
		}
	}

	var stack ownership.Stack
	defer stack.CloseOnError(&err)

	r, err := cfg.codec.NewReader(src, size)
	if err != nil {
		return UnpackStats{}, entryError("unpack", target, fmt.Errorf("open container: %w", err))
	}
	stack.Push("container reader", r)

	cfg.progress.report(StageClearing, target, 0, 0)
	if err := os.RemoveAll(target); err != nil {
		return UnpackStats{}, entryError("unpack", target, fmt.Errorf("clear destination: %w", err))
	}
	if err := os.MkdirAll(target, 0o750); err != nil {
		return UnpackStats{}, entryError("unpack", target, fmt.Errorf("create destination: %w", err))
	}
	root, err := os.OpenRoot(target)
	if err != nil {
		return UnpackStats{}, entryError("unpack", target, fmt.Errorf("open destination: %w", err))
	}
	stack.Push("destination "+target, root)
	u.root = root

	for {
		if err := ctx.Err(); err != nil {
			return u.stats, err
		}
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return u.stats, entryError("unpack", target, fmt.Errorf("next entry: %w", err))
		}
		if err := u.unpackEntry(ctx, r, entry); err != nil {
			return u.stats, entryError("unpack", entry.Name, err)
		}
	}

	cfg.progress.report(StageFinalizing, "", u.stats.Bytes, u.stats.Files)
	if err := stack.Close(); err != nil {
		return u.stats, entryError("unpack", target, err)
	}
	u.log().Info("unpack finished",
		"files", u.stats.Files,
		"skipped", u.stats.Skipped,
		"bytes", u.stats.Bytes,
		"duration", time.Since(start),
	)
	return u.stats, nil
}

// unpacker holds state for one unpack invocation.
type unpacker struct {
	cfg        *unpackConfig
	passphrase string
	root       *os.Root
	buf        []byte
	stats      UnpackStats
}

func newUnpacker(cfg *unpackConfig, passphrase string) (*unpacker, error) {
	if cfg.codec == nil {
		cfg.codec = zipcodec.New()
	}
	buf, err := streamcopy.NewBuffer(cfg.chunkSize)
	if err != nil {
		return nil, fmt.Errorf("ziptree: unpack: %w", err)
	}
	return &unpacker{cfg: cfg, passphrase: passphrase, buf: buf}, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (u *unpacker) log() *slog.Logger {
	if u.cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return u.cfg.logger
}

func (u *unpacker) unpackEntry(ctx context.Context, r codec.Reader, entry codec.Entry) (err error) {
	if entry.IsDir || entryname.IsDirPlaceholder(entry.Name) {
		u.stats.Skipped++
		u.log().Debug("skipping directory record", "name", entry.Name)
		return nil
	}
	name, err := entryname.Validate(entry.Name)
	if err != nil {
		return err
	}
	if r.RequiresPassphrase(entry) && u.passphrase == "" {
		return codec.ErrPassphraseRequired
	}

	var stack ownership.Stack
	defer stack.CloseOnError(&err)

	// The source is opened first so a decryption failure never creates a file.
	src, err := r.OpenReadSource(entry, u.passphrase)
	if err != nil {
		return err
	}
	stack.Push(name+" source", src)

	rel := filepath.FromSlash(name)
	if parent := filepath.Dir(rel); parent != "." {
		if err := u.root.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", parent, err)
		}
	}
	out, err := u.root.OpenFile(rel, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644) //nolint:gosec // extracted files are user content
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	stack.Push(name, out)

	u.log().Debug("unpacking file", "name", name, "size", entry.Size)
	n, err := streamcopy.Copy(ctx, out, src, u.buf)
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if n != entry.Size {
		return fmt.Errorf("%w: declared %d bytes, read %d", codec.ErrCorruptEntry, entry.Size, n)
	}
	if err := stack.Close(); err != nil {
		return err
	}

	if u.cfg.preserveMode && entry.Mode.Perm() != 0 {
		if err := u.root.Chmod(rel, entry.Mode.Perm()); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
	}
	if u.cfg.preserveTimes && !entry.ModTime.IsZero() {
		if err := u.root.Chtimes(rel, entry.ModTime, entry.ModTime); err != nil {
			return fmt.Errorf("chtimes: %w", err)
		}
	}

	u.stats.Files++
	u.stats.Bytes += n
	u.cfg.progress.report(StageUnpacking, name, u.stats.Bytes, u.stats.Files)
	return nil
}

// cleanTarget refuses destinations whose recursive removal would be
// catastrophic.
func cleanTarget(dir string) (string, error) {
	if dir == "" {
		return "", errors.New("ziptree: unpack: destination is empty")
	}
	target := filepath.Clean(dir)
	volume := filepath.VolumeName(target)
	if target == "." || target == string(filepath.Separator) ||
		(volume != "" && (target == volume || target == volume+string(filepath.Separator))) {
		return "", fmt.Errorf("ziptree: unpack: refusing to remove %q", target)
	}
	return target, nil
}

// containsPath reports whether path lies inside dir or is dir itself. Links
// are resolved where the paths exist.
func containsPath(dir, path string) bool {
	resolve := func(p string) string {
		abs, err := filepath.Abs(p)
		if err != nil {
			return filepath.Clean(p)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			return resolved
		}
		return abs
	}
	rel, err := filepath.Rel(resolve(dir), resolve(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// digestChunkSize bounds the reads used to hash a container. Remote sources
// issue one request per read.
const digestChunkSize = 1 << 20

func verifyDigest(src io.ReaderAt, size int64, want digest.Digest) error {
	if err := want.Validate(); err != nil {
		return fmt.Errorf("ziptree: unpack: expected digest: %w", err)
	}
	v := want.Verifier()
	buf := make([]byte, max(1, min(size, digestChunkSize)))
	if _, err := io.CopyBuffer(v, io.NewSectionReader(src, 0, size), buf); err != nil {
		return entryError("unpack", "", fmt.Errorf("read container: %w", err))
	}
	if !v.Verified() {
		return fmt.Errorf("%w: expected %s", ErrDigestMismatch, want)
	}
	return nil
}
