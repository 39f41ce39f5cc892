package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrDecryption is the class of failures caused by a missing or wrong passphrase.
	ErrDecryption = errors.New("codec: decryption failed")

	// ErrPassphraseRequired is returned when an encrypted entry is opened without a passphrase.
	ErrPassphraseRequired = fmt.Errorf("%w: passphrase required", ErrDecryption)

	// ErrWrongPassphrase is returned when the passphrase does not match the entry.
	ErrWrongPassphrase = fmt.Errorf("%w: wrong passphrase", ErrDecryption)

	// ErrCorruptEntry is returned when an entry fails integrity verification.
	ErrCorruptEntry = errors.New("codec: corrupt entry")

	// ErrUnsupported is returned for compression or encryption schemes the codec cannot handle.
	ErrUnsupported = errors.New("codec: unsupported")
)
