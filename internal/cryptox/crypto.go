// Package cryptox implements the server-side file cipher: AES-256-CBC with
// PKCS#7 padding under a key derived once from the operator secret, applied
// as streaming io.Reader transforms so files never have to be buffered whole.
//
// CBC carries no authentication tag. Ciphertext decrypted with the wrong IV
// or key yields garbage rather than an error; only a malformed padding
// trailer at the very end of the stream is detected.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dmitrijs2005/filevault/internal/common"
)

// IVSize is the length of the per-file initialization vector.
const IVSize = aes.BlockSize

const chunkSize = 32 * 1024

// ErrCorruptCiphertext reports a ciphertext whose length or padding is not
// what the encryptor produces. It matches common.ErrStream.
var ErrCorruptCiphertext = fmt.Errorf("%w: corrupt ciphertext", common.ErrStream)

// CipherContext holds the process-wide file key. It is immutable after
// construction and safe for concurrent use.
type CipherContext struct {
	block cipher.Block
}

// NewCipherContext derives the AES-256 key as SHA-256(secret).
func NewCipherContext(secret string) (*CipherContext, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty encryption secret", common.ErrConfiguration)
	}

	key := sha256.Sum256([]byte(secret))
	defer common.WipeByteArray(key[:])

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	return &CipherContext{block: block}, nil
}

// NewEncryptor generates a fresh random IV and returns it together with a
// reader yielding the ciphertext of src.
func (c *CipherContext) NewEncryptor(src io.Reader) ([]byte, io.Reader) {
	iv := common.GenerateRandByteArray(IVSize)
	return iv, &encryptReader{
		src:    src,
		mode:   cipher.NewCBCEncrypter(c.block, iv),
		buf:    make([]byte, chunkSize),
		outBuf: make([]byte, chunkSize+aes.BlockSize),
	}
}

// NewDecryptor returns a reader yielding the plaintext of the ciphertext in
// src, which must have been produced with the same key and iv.
func (c *CipherContext) NewDecryptor(iv []byte, src io.Reader) (io.Reader, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrValidation, IVSize, len(iv))
	}
	return &decryptReader{
		src:    src,
		mode:   cipher.NewCBCDecrypter(c.block, iv),
		buf:    make([]byte, chunkSize),
		outBuf: make([]byte, chunkSize+aes.BlockSize),
	}, nil
}

// CiphertextSize is the stored length for n plaintext bytes: n rounded up
// to the next block boundary, with a full padding block when n is aligned.
func CiphertextSize(n int64) int64 {
	return (n/aes.BlockSize + 1) * aes.BlockSize
}

// EncodeIV renders an IV the way it is persisted next to file metadata.
func EncodeIV(iv []byte) string {
	return hex.EncodeToString(iv)
}

// DecodeIV parses a persisted IV.
func DecodeIV(s string) ([]byte, error) {
	iv, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", common.ErrValidation, err)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrValidation, IVSize, len(iv))
	}
	return iv, nil
}

type encryptReader struct {
	src     io.Reader
	mode    cipher.BlockMode
	buf     []byte
	outBuf  []byte
	pending []byte // plaintext tail shorter than one block
	out     []byte // ciphertext not yet handed to the caller
	done    bool
}

func (e *encryptReader) Read(p []byte) (int, error) {
	for len(e.out) == 0 {
		if e.done {
			return 0, io.EOF
		}
		if err := e.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, e.out)
	e.out = e.out[n:]
	return n, nil
}

func (e *encryptReader) fill() error {
	n, err := e.src.Read(e.buf)
	e.pending = append(e.pending, e.buf[:n]...)

	if err == io.EOF {
		last := pkcs7Pad(e.pending, aes.BlockSize)
		e.mode.CryptBlocks(last, last)
		e.out = last
		e.pending = nil
		e.done = true
		return nil
	}
	if err != nil {
		return err
	}

	full := len(e.pending) - len(e.pending)%aes.BlockSize
	if full == 0 {
		return nil
	}
	e.out = e.outBuf[:full]
	e.mode.CryptBlocks(e.out, e.pending[:full])
	e.pending = append(e.pending[:0], e.pending[full:]...)
	return nil
}

type decryptReader struct {
	src     io.Reader
	mode    cipher.BlockMode
	buf     []byte
	outBuf  []byte
	pending []byte // ciphertext held back; always includes the last block seen
	out     []byte
	done    bool
}

func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.done {
			return 0, io.EOF
		}
		if err := d.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

func (d *decryptReader) fill() error {
	n, err := d.src.Read(d.buf)
	d.pending = append(d.pending, d.buf[:n]...)

	if err == io.EOF {
		if len(d.pending) == 0 || len(d.pending)%aes.BlockSize != 0 {
			return ErrCorruptCiphertext
		}
		d.mode.CryptBlocks(d.pending, d.pending)
		plain, err := pkcs7Unpad(d.pending, aes.BlockSize)
		if err != nil {
			return err
		}
		d.out = plain
		d.pending = nil
		d.done = true
		return nil
	}
	if err != nil {
		return err
	}

	// The final block carries the padding, so one block is always held
	// back until EOF tells us which block is final.
	keep := len(d.pending) % aes.BlockSize
	if keep == 0 {
		keep = aes.BlockSize
	}
	ready := len(d.pending) - keep
	if ready <= 0 {
		return nil
	}
	d.out = d.outBuf[:ready]
	d.mode.CryptBlocks(d.out, d.pending[:ready])
	d.pending = append(d.pending[:0], d.pending[ready:]...)
	return nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	pad := blockSize - len(b)%blockSize
	for i := 0; i < pad; i++ {
		b = append(b, byte(pad))
	}
	return b
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrCorruptCiphertext
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > blockSize {
		return nil, ErrCorruptCiphertext
	}
	for _, v := range b[len(b)-pad:] {
		if int(v) != pad {
			return nil, ErrCorruptCiphertext
		}
	}
	return b[:len(b)-pad], nil
}
