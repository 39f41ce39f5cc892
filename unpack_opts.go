package ziptree

import (
	"log/slog"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ziptree/codec"
)

// unpackConfig holds configuration for Unpack and Read.
type unpackConfig struct {
	codec          codec.Codec
	chunkSize      int
	logger         *slog.Logger
	progress       ProgressFunc
	preserveMode   bool
	preserveTimes  bool
	expectedDigest digest.Digest
}

// UnpackOption configures Unpack and Read.
type UnpackOption func(*unpackConfig)

// UnpackWithCodec sets the codec that reads the container.
// The default is the ZIP codec.
func UnpackWithCodec(c codec.Codec) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.codec = c
	}
}

// UnpackWithChunkSize sets the copy buffer size in bytes. Zero keeps the
// default of 4096.
func UnpackWithChunkSize(n int) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.chunkSize = n
	}
}

// UnpackWithLogger sets the logger. Per-entry messages are logged at debug level.
func UnpackWithLogger(logger *slog.Logger) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.logger = logger
	}
}

// UnpackWithProgress sets a callback that receives progress updates.
func UnpackWithProgress(fn ProgressFunc) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.progress = fn
	}
}

// UnpackWithPreserveMode applies stored permission bits to extracted files.
// By default, files are created with mode 0644 before umask.
func UnpackWithPreserveMode(preserve bool) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.preserveMode = preserve
	}
}

// UnpackWithPreserveTimes applies stored modification times to extracted files.
// By default, files carry the time they were extracted.
func UnpackWithPreserveTimes(preserve bool) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.preserveTimes = preserve
	}
}

// UnpackWithExpectedDigest verifies the whole container against d before
// the destination is touched. A mismatch fails with ErrDigestMismatch.
func UnpackWithExpectedDigest(d digest.Digest) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.expectedDigest = d
	}
}
