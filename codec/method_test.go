package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMethodString(t *testing.T) {
	tests := []struct {
		m    Method
		want string
	}{
		{MethodDefault, "default"},
		{MethodStore, "store"},
		{MethodDeflate, "deflate"},
		{MethodZstd, "zstd"},
		{Method(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.String())
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{MethodDefault, MethodStore, MethodDeflate, MethodZstd} {
		got, ok := ParseMethod(m.String())
		assert.True(t, ok)
		assert.Equal(t, m, got)
	}
	got, ok := ParseMethod("")
	assert.True(t, ok)
	assert.Equal(t, MethodDefault, got)

	_, ok = ParseMethod("lzma")
	assert.False(t, ok)
}

func TestPassphraseErrorsAreDecryptionErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrPassphraseRequired, ErrDecryption))
	assert.True(t, errors.Is(ErrWrongPassphrase, ErrDecryption))
	assert.False(t, errors.Is(ErrPassphraseRequired, ErrWrongPassphrase))
	assert.False(t, errors.Is(ErrCorruptEntry, ErrDecryption))
}
