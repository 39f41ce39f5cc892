package zipcodec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // WinZip AES mandates HMAC-SHA1 and PBKDF2-HMAC-SHA1
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/meigma/ziptree/codec"
)

// WinZip AES constants (AE-1 / AE-2 specification).
const (
	aesMethod        uint16 = 99
	aesExtraID       uint16 = 0x9901
	aesExtraDataLen         = 7
	aesVendorAE1     uint16 = 1
	aesVendorAE2     uint16 = 2
	aesStrength256   byte   = 3
	aesIterations           = 1000
	aesPwvLen               = 2
	aesAuthLen              = 10
	flagEncrypted    uint16 = 0x1
	aesWriteStrength        = aesStrength256
)

// aesExtra is the decoded 0x9901 extra field.
type aesExtra struct {
	vendor   uint16
	strength byte
	method   uint16
}

func (x aesExtra) keyLen() int {
	switch x.strength {
	case 1:
		return 16
	case 2:
		return 24
	case 3:
		return 32
	default:
		return 0
	}
}

func (x aesExtra) saltLen() int {
	return x.keyLen() / 2
}

// encode returns the complete extra field record, header included.
func (x aesExtra) encode() []byte {
	b := make([]byte, 4+aesExtraDataLen)
	binary.LittleEndian.PutUint16(b[0:2], aesExtraID)
	binary.LittleEndian.PutUint16(b[2:4], aesExtraDataLen)
	binary.LittleEndian.PutUint16(b[4:6], x.vendor)
	b[6], b[7] = 'A', 'E'
	b[8] = x.strength
	binary.LittleEndian.PutUint16(b[9:11], x.method)
	return b
}

// findAESExtra scans a raw extra field block for the WinZip AES record.
func findAESExtra(extra []byte) (aesExtra, error) {
	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			break
		}
		if id == aesExtraID {
			if size < aesExtraDataLen || extra[2] != 'A' || extra[3] != 'E' {
				return aesExtra{}, fmt.Errorf("%w: malformed AES extra field", codec.ErrCorruptEntry)
			}
			x := aesExtra{
				vendor:   binary.LittleEndian.Uint16(extra[0:2]),
				strength: extra[4],
				method:   binary.LittleEndian.Uint16(extra[5:7]),
			}
			if x.keyLen() == 0 {
				return aesExtra{}, fmt.Errorf("%w: AES strength %d", codec.ErrUnsupported, x.strength)
			}
			return x, nil
		}
		extra = extra[size:]
	}
	return aesExtra{}, fmt.Errorf("%w: missing AES extra field", codec.ErrCorruptEntry)
}

// aesKeys holds the material derived from a passphrase and salt.
type aesKeys struct {
	enc []byte
	mac []byte
	pwv []byte
}

func deriveKeys(passphrase string, salt []byte, keyLen int) aesKeys {
	dk := pbkdf2.Key([]byte(passphrase), salt, aesIterations, 2*keyLen+aesPwvLen, sha1.New)
	return aesKeys{
		enc: dk[:keyLen],
		mac: dk[keyLen : 2*keyLen],
		pwv: dk[2*keyLen:],
	}
}

// ctrStream is AES in counter mode with the little-endian counter WinZip
// uses, starting at one. cipher.NewCTR counts big-endian and cannot be used.
type ctrStream struct {
	block   cipher.Block
	counter [aes.BlockSize]byte
	pad     [aes.BlockSize]byte
	used    int
}

func newCTRStream(key []byte) (*ctrStream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &ctrStream{block: block, used: aes.BlockSize}, nil
}

func (s *ctrStream) XORKeyStream(dst, src []byte) {
	for i := range src {
		if s.used == aes.BlockSize {
			for j := range s.counter {
				s.counter[j]++
				if s.counter[j] != 0 {
					break
				}
			}
			s.block.Encrypt(s.pad[:], s.counter[:])
			s.used = 0
		}
		dst[i] = src[i] ^ s.pad[s.used]
		s.used++
	}
}

// aesWriter encrypts everything written to it and authenticates the
// ciphertext. The salt and password verifier precede the first ciphertext
// byte; the authentication code is appended on Close. Nothing reaches dst
// before the first Write or Close, because zip.Writer builds compressors
// before it emits the local file header.
type aesWriter struct {
	dst    io.Writer
	head   []byte
	stream *ctrStream
	mac    hash.Hash
	buf    []byte
	closed bool
}

func newAESWriter(dst io.Writer, passphrase string, strength byte, random io.Reader) (*aesWriter, error) {
	x := aesExtra{strength: strength}
	salt := make([]byte, x.saltLen())
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	keys := deriveKeys(passphrase, salt, x.keyLen())
	stream, err := newCTRStream(keys.enc)
	if err != nil {
		return nil, err
	}
	return &aesWriter{
		dst:    dst,
		head:   append(salt, keys.pwv...),
		stream: stream,
		mac:    hmac.New(sha1.New, keys.mac),
	}, nil
}

func (w *aesWriter) writeHead() error {
	if w.head == nil {
		return nil
	}
	head := w.head
	w.head = nil
	_, err := w.dst.Write(head)
	return err
}

func (w *aesWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("zipcodec: write after close")
	}
	if err := w.writeHead(); err != nil {
		return 0, err
	}
	if cap(w.buf) < len(p) {
		w.buf = make([]byte, len(p))
	}
	out := w.buf[:len(p)]
	w.stream.XORKeyStream(out, p)
	w.mac.Write(out)
	n, err := w.dst.Write(out)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// Close writes the authentication code. It does not close dst.
func (w *aesWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.writeHead(); err != nil {
		return err
	}
	_, err := w.dst.Write(w.mac.Sum(nil)[:aesAuthLen])
	return err
}

// aesReader decrypts one entry's payload from a bounded section and checks
// the authentication code once the ciphertext is exhausted.
type aesReader struct {
	section *io.SectionReader
	body    *io.SectionReader
	authOff int64
	stream  *ctrStream
	mac     hash.Hash
	err     error
}

func newAESReader(section *io.SectionReader, passphrase string, x aesExtra) (*aesReader, error) {
	saltLen := int64(x.saltLen())
	overhead := saltLen + aesPwvLen + aesAuthLen
	if section.Size() < overhead {
		return nil, fmt.Errorf("%w: encrypted payload too short", codec.ErrCorruptEntry)
	}
	head := make([]byte, saltLen+aesPwvLen)
	if _, err := section.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("read AES header: %w", err)
	}
	keys := deriveKeys(passphrase, head[:saltLen], x.keyLen())
	if subtle.ConstantTimeCompare(keys.pwv, head[saltLen:]) != 1 {
		return nil, codec.ErrWrongPassphrase
	}
	stream, err := newCTRStream(keys.enc)
	if err != nil {
		return nil, err
	}
	bodyLen := section.Size() - overhead
	return &aesReader{
		section: section,
		body:    io.NewSectionReader(section, saltLen+aesPwvLen, bodyLen),
		authOff: saltLen + aesPwvLen + bodyLen,
		stream:  stream,
		mac:     hmac.New(sha1.New, keys.mac),
	}, nil
}

func (r *aesReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.body.Read(p)
	if n > 0 {
		r.mac.Write(p[:n])
		r.stream.XORKeyStream(p[:n], p[:n])
	}
	if err == io.EOF {
		err = r.verify()
	}
	if err != nil {
		r.err = err
	}
	return n, err
}

func (r *aesReader) verify() error {
	want := make([]byte, aesAuthLen)
	if _, err := r.section.ReadAt(want, r.authOff); err != nil && err != io.EOF {
		return fmt.Errorf("read AES authentication code: %w", err)
	}
	if !hmac.Equal(r.mac.Sum(nil)[:aesAuthLen], want) {
		return fmt.Errorf("%w: authentication code mismatch", codec.ErrCorruptEntry)
	}
	return io.EOF
}
