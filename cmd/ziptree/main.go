// Command ziptree packs a directory into a ZIP container and unpacks one
// back into a directory.
//
//	ziptree pack [flags] <output.zip> <source-dir>
//	ziptree unpack [flags] <archive.zip|url> <dest-dir>
//	ziptree config [-config file]
//
// The passphrase is read from the ZIPTREE_PASSPHRASE environment variable or
// from the file named by -passphrase-file. Settings may also come from a YAML
// file (-config); flags override file values. An http or https archive is
// read with range requests instead of being downloaded first.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ziptree"
	zipcodec "github.com/meigma/ziptree/codec/zip"
	"github.com/meigma/ziptree/internal/config"
	"github.com/meigma/ziptree/internal/remote"
)

const passphraseEnv = "ZIPTREE_PASSPHRASE"

// Exit codes.
const (
	exitFailure    = 1
	exitUsage      = 2
	exitDecryption = 3
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "ziptree:", err)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return exitUsage
	case errors.Is(err, ziptree.ErrDecryption):
		return exitDecryption
	default:
		return exitFailure
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage:
  ziptree pack [flags] <output.zip> <source-dir>
  ziptree unpack [flags] <archive.zip|url> <dest-dir>
  ziptree config [-config file]

Run "ziptree <command> -h" for the flags of a command.
`)
}

// run executes one command. getenv is os.Getenv outside tests.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}
	switch args[0] {
	case "pack":
		return runPack(ctx, args[1:], getenv, stdout, stderr)
	case "unpack":
		return runUnpack(ctx, args[1:], getenv, stdout, stderr)
	case "config":
		return runConfig(args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return errUsage
	}
}

// common holds flags shared by pack and unpack.
type common struct {
	configPath     string
	passphraseFile string
	chunkSize      int
	logLevel       string
	logFormat      string
	quiet          bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML settings file")
	fs.StringVar(&c.passphraseFile, "passphrase-file", "", "read the passphrase from this file (overrides "+passphraseEnv+")")
	fs.IntVar(&c.chunkSize, "chunk-size", 0, "copy buffer size in bytes")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "", "log format: text or json")
	fs.BoolVar(&c.quiet, "q", false, "do not print a summary")
}

// settings loads the config file and applies flag overrides.
func (c *common) settings(fs *flag.FlagSet, apply func(*config.Config)) (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath, false)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["chunk-size"] {
		cfg.ChunkSize = c.chunkSize
	}
	if set["log-level"] {
		cfg.LogLevel = c.logLevel
	}
	if set["log-format"] {
		cfg.LogFormat = c.logFormat
	}
	if apply != nil {
		apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (c *common) passphrase(getenv func(string) string) (string, error) {
	if c.passphraseFile == "" {
		return getenv(passphraseEnv), nil
	}
	data, err := os.ReadFile(c.passphraseFile)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel() //nolint:errcheck // validated by config.Validate
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func runPack(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	method := fs.String("method", "", "compression method: deflate, store, zstd")
	level := fs.Int("level", 0, "deflate level, -2 through 9")
	strictNames := fs.Bool("strict-names", false, "fail when two files share an entry name")
	strictChanges := fs.Bool("strict-changes", false, "fail when a file changes while it is packed")
	maxFiles := fs.Int("max-files", 0, "maximum number of files (negative for no limit)")
	storeCompressed := fs.Bool("store-compressed", false, "store already-compressed files without recompressing")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "pack needs an output file and a source directory")
		return errUsage
	}

	cfg, err := c.settings(fs, func(cfg *config.Config) {
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "method":
				cfg.Method = *method
			case "level":
				cfg.Level = level
			case "strict-names":
				cfg.StrictNames = *strictNames
			case "strict-changes":
				cfg.StrictChanges = *strictChanges
			case "max-files":
				cfg.MaxFiles = *maxFiles
			case "store-compressed":
				cfg.StoreCompressed = *storeCompressed
			}
		})
	})
	if err != nil {
		return err
	}
	passphrase, err := c.passphrase(getenv)
	if err != nil {
		return err
	}

	codecOpts := []zipcodec.Option{zipcodec.WithMethod(cfg.CodecMethod())}
	if cfg.Level != nil {
		codecOpts = append(codecOpts, zipcodec.WithLevel(*cfg.Level))
	}
	opts := []ziptree.PackOption{
		ziptree.PackWithCodec(zipcodec.New(codecOpts...)),
		ziptree.PackWithChunkSize(cfg.ChunkSize),
		ziptree.PackWithLogger(newLogger(cfg, stderr)),
		ziptree.PackWithStrictNames(cfg.StrictNames),
		ziptree.PackWithMaxFiles(cfg.MaxFiles),
	}
	if cfg.StrictChanges {
		opts = append(opts, ziptree.PackWithChangeDetection(ziptree.ChangeDetectionStrict))
	}
	if cfg.StoreCompressed {
		opts = append(opts, ziptree.PackWithSkipCompression(ziptree.DefaultSkipCompression(cfg.StoreBelow)))
	}

	stats, err := ziptree.Pack(ctx, ziptree.PackRequest{
		Output:     fs.Arg(0),
		Passphrase: passphrase,
		Source:     fs.Arg(1),
	}, opts...)
	if err != nil {
		return err
	}
	if !c.quiet {
		fmt.Fprintf(stdout, "packed %d files (%d bytes) into %s: %d bytes, %s\n",
			stats.Files, stats.Bytes, fs.Arg(0), stats.ContainerSize, stats.Digest)
	}
	return nil
}

func runUnpack(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("unpack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	preserveMode := fs.Bool("preserve-mode", true, "apply stored permission bits")
	preserveTimes := fs.Bool("preserve-times", true, "apply stored modification times")
	expect := fs.String("digest", "", "expected container digest, e.g. sha256:...")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "unpack needs an archive and a destination directory")
		return errUsage
	}

	cfg, err := c.settings(fs, func(cfg *config.Config) {
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "preserve-mode":
				cfg.PreserveMode = *preserveMode
			case "preserve-times":
				cfg.PreserveTimes = *preserveTimes
			}
		})
	})
	if err != nil {
		return err
	}
	passphrase, err := c.passphrase(getenv)
	if err != nil {
		return err
	}

	opts := []ziptree.UnpackOption{
		ziptree.UnpackWithChunkSize(cfg.ChunkSize),
		ziptree.UnpackWithLogger(newLogger(cfg, stderr)),
		ziptree.UnpackWithPreserveMode(cfg.PreserveMode),
		ziptree.UnpackWithPreserveTimes(cfg.PreserveTimes),
	}
	if *expect != "" {
		d, err := digest.Parse(*expect)
		if err != nil {
			return fmt.Errorf("%w: -digest: %w", errUsage, err)
		}
		opts = append(opts, ziptree.UnpackWithExpectedDigest(d))
	}

	var stats ziptree.UnpackStats
	if remote.IsURL(fs.Arg(0)) {
		var src *remote.Source
		if src, err = remote.Open(ctx, fs.Arg(0)); err != nil {
			return err
		}
		stats, err = ziptree.Read(ctx, src, src.Size(), fs.Arg(1), passphrase, opts...)
	} else {
		stats, err = ziptree.Unpack(ctx, ziptree.UnpackRequest{
			Archive:     fs.Arg(0),
			Passphrase:  passphrase,
			Destination: fs.Arg(1),
		}, opts...)
	}
	if err != nil {
		return err
	}
	if !c.quiet {
		fmt.Fprintf(stdout, "unpacked %d files (%d bytes) into %s\n", stats.Files, stats.Bytes, fs.Arg(1))
	}
	return nil
}

func runConfig(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "YAML settings file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	cfg := config.Default()
	if *path != "" {
		loaded, err := config.Load(*path, false)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}
