package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/ziptree"
	"github.com/meigma/ziptree/internal/testutil"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func runCmd(t *testing.T, getenv func(string) string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, getenv, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestPackUnpack(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteStringTree(t, src, map[string]string{
		"Foo.txt":     "FooFoo",
		"Bar/Bar.txt": "BarBar",
	})
	archive := filepath.Join(t.TempDir(), "out.zip")
	dest := filepath.Join(t.TempDir(), "dest")

	stdout, _, err := runCmd(t, env(nil), "pack", "-method", "zstd", archive, src)
	require.NoError(t, err)
	assert.Contains(t, stdout, "packed 2 files")
	assert.Contains(t, stdout, "sha256:")

	digest := strings.TrimSpace(stdout[strings.LastIndex(stdout, "sha256:"):])
	stdout, _, err = runCmd(t, env(nil), "unpack", "-digest", digest, archive, dest)
	require.NoError(t, err)
	assert.Contains(t, stdout, "unpacked 2 files")
	assert.Equal(t, map[string]string{"Foo.txt": "FooFoo", "Bar/Bar.txt": "BarBar"}, testutil.ReadStringTree(t, dest))
}

func TestUnpackFromURL(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteStringTree(t, src, map[string]string{"a/b.txt": "remote"})
	archive := filepath.Join(t.TempDir(), "out.zip")
	_, _, err := runCmd(t, env(nil), "pack", "-q", archive, src)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	t.Cleanup(srv.Close)

	dest := filepath.Join(t.TempDir(), "dest")
	stdout, _, err := runCmd(t, env(nil), "unpack", srv.URL+"/out.zip", dest)
	require.NoError(t, err)
	assert.Contains(t, stdout, "unpacked 1 files")
	assert.Equal(t, map[string]string{"a/b.txt": "remote"}, testutil.ReadStringTree(t, dest))
}

func TestPassphraseFromEnvironmentAndFile(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteStringTree(t, src, map[string]string{"secret.txt": "s"})
	archive := filepath.Join(t.TempDir(), "out.zip")

	_, _, err := runCmd(t, env(map[string]string{passphraseEnv: "from-env"}), "pack", "-q", archive, src)
	require.NoError(t, err)

	_, _, err = runCmd(t, env(nil), "unpack", "-q", archive, filepath.Join(t.TempDir(), "d"))
	require.ErrorIs(t, err, ziptree.ErrPassphraseRequired)
	assert.Equal(t, exitDecryption, exitCode(err))

	pwFile := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(pwFile, []byte("from-env\n"), 0o600))
	dest := filepath.Join(t.TempDir(), "d")
	_, _, err = runCmd(t, env(nil), "unpack", "-q", "-passphrase-file", pwFile, archive, dest)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"secret.txt": "s"}, testutil.ReadStringTree(t, dest))
}

func TestConfigFileAndOverrides(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "ziptree.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("method: store\nmax_files: 1\nlog_format: json\n"), 0o600))

	src := t.TempDir()
	testutil.WriteStringTree(t, src, map[string]string{"a": "a", "b": "b"})
	archive := filepath.Join(t.TempDir(), "out.zip")

	_, _, err := runCmd(t, env(nil), "pack", "-config", cfgPath, archive, src)
	require.ErrorIs(t, err, ziptree.ErrTooManyFiles)

	_, stderr, err := runCmd(t, env(nil), "pack", "-config", cfgPath, "-max-files", "-1", "-log-level", "debug", archive, src)
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"pack finished"`)

	stdout, _, err := runCmd(t, env(nil), "config", "-config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "method: store")
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"explode"}},
		{name: "pack missing args", args: []string{"pack", "only-one"}},
		{name: "unpack missing args", args: []string{"unpack"}},
		{name: "bad flag", args: []string{"pack", "-nope", "a", "b"}},
		{name: "bad digest", args: []string{"unpack", "-digest", "md5:xyz", "a.zip", "dest"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := runCmd(t, env(nil), tt.args...)
			require.ErrorIs(t, err, errUsage)
			assert.Equal(t, exitUsage, exitCode(err))
		})
	}
}

func TestInvalidMethodFlag(t *testing.T) {
	t.Parallel()

	_, _, err := runCmd(t, env(nil), "pack", "-method", "lzma", "out.zip", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, exitFailure, exitCode(err))
}
