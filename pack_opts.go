package ziptree

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/meigma/ziptree/codec"
)

// DefaultMaxFiles is the default limit used when no PackWithMaxFiles option is set.
const DefaultMaxFiles = 200_000

// ChangeDetection controls how strictly file changes are detected while packing.
type ChangeDetection uint8

const (
	// ChangeDetectionNone only compares the copied length with the size
	// reported when the file was opened.
	ChangeDetectionNone ChangeDetection = iota

	// ChangeDetectionStrict also checks that the opened file is the one
	// enumerated and that size, mtime, and mode did not change while copying.
	ChangeDetectionStrict
)

// SkipCompressionFunc returns true when a file should be stored uncompressed.
// It is called once per file with the entry name and should be inexpensive.
type SkipCompressionFunc func(name string, info fs.FileInfo) bool

// DefaultSkipCompression returns a SkipCompressionFunc that stores files
// smaller than minSize and files with well-known compressed extensions.
func DefaultSkipCompression(minSize int64) SkipCompressionFunc {
	return func(name string, info fs.FileInfo) bool {
		if info != nil && minSize > 0 && info.Size() < minSize {
			return true
		}
		_, ok := compressedExts[strings.ToLower(filepath.Ext(name))]
		return ok
	}
}

var compressedExts = map[string]struct{}{
	".7z": {}, ".aac": {}, ".avif": {}, ".br": {}, ".bz2": {}, ".docx": {},
	".flac": {}, ".gif": {}, ".gz": {}, ".heic": {}, ".jar": {}, ".jpeg": {},
	".jpg": {}, ".lz4": {}, ".m4a": {}, ".m4v": {}, ".mkv": {}, ".mov": {},
	".mp3": {}, ".mp4": {}, ".ogg": {}, ".opus": {}, ".png": {}, ".rar": {},
	".tgz": {}, ".webm": {}, ".webp": {}, ".woff2": {}, ".xlsx": {}, ".xz": {},
	".zip": {}, ".zst": {},
}

// packConfig holds configuration for Pack and Write.
type packConfig struct {
	codec           codec.Codec
	chunkSize       int
	logger          *slog.Logger
	progress        ProgressFunc
	strictNames     bool
	maxFiles        int
	changeDetection ChangeDetection
	skipCompression []SkipCompressionFunc
}

// PackOption configures Pack and Write.
type PackOption func(*packConfig)

// PackWithCodec sets the codec that lays out the container.
// The default is the ZIP codec with Deflate compression.
func PackWithCodec(c codec.Codec) PackOption {
	return func(cfg *packConfig) {
		cfg.codec = c
	}
}

// PackWithChunkSize sets the copy buffer size in bytes. Zero keeps the
// default of 4096.
func PackWithChunkSize(n int) PackOption {
	return func(cfg *packConfig) {
		cfg.chunkSize = n
	}
}

// PackWithLogger sets the logger. Per-entry messages are logged at debug level.
func PackWithLogger(logger *slog.Logger) PackOption {
	return func(cfg *packConfig) {
		cfg.logger = logger
	}
}

// PackWithProgress sets a callback that receives progress updates.
func PackWithProgress(fn ProgressFunc) PackOption {
	return func(cfg *packConfig) {
		cfg.progress = fn
	}
}

// PackWithStrictNames fails with ErrDuplicateEntry when two files produce
// the same entry name. By default names are written as produced.
func PackWithStrictNames(strict bool) PackOption {
	return func(cfg *packConfig) {
		cfg.strictNames = strict
	}
}

// PackWithMaxFiles limits the number of files packed.
// Zero uses DefaultMaxFiles. Negative means no limit.
func PackWithMaxFiles(n int) PackOption {
	return func(cfg *packConfig) {
		cfg.maxFiles = n
	}
}

// PackWithChangeDetection controls whether files are checked for changes
// while they are copied.
func PackWithChangeDetection(cd ChangeDetection) PackOption {
	return func(cfg *packConfig) {
		cfg.changeDetection = cd
	}
}

// PackWithSkipCompression adds predicates that decide to store a file
// uncompressed. If any predicate returns true, the entry uses MethodStore.
func PackWithSkipCompression(fns ...SkipCompressionFunc) PackOption {
	return func(cfg *packConfig) {
		cfg.skipCompression = append(cfg.skipCompression, fns...)
	}
}

func (cfg *packConfig) shouldStore(name string, info fs.FileInfo) bool {
	for _, fn := range cfg.skipCompression {
		if fn != nil && fn(name, info) {
			return true
		}
	}
	return false
}
