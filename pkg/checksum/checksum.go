// Package checksum provides content fingerprints for stored documents: a plain
// SHA-256 checksum recorded alongside each upload, and a keyed HMAC digest used
// to detect tampering. Both stream their input so memory use does not grow with
// file size.
package checksum

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
)

// SHA256Writer accumulates a SHA-256 checksum of everything written to it.
// Pair it with io.MultiWriter to fingerprint a stream while copying it.
type SHA256Writer struct {
	h hash.Hash
	n int64
}

// NewSHA256Writer returns an empty SHA256Writer.
func NewSHA256Writer() *SHA256Writer {
	return &SHA256Writer{h: sha256.New()}
}

func (w *SHA256Writer) Write(p []byte) (int, error) {
	n, _ := w.h.Write(p)
	w.n += int64(n)
	return n, nil
}

// Sum returns the lowercase hex checksum of the bytes written so far.
func (w *SHA256Writer) Sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}

// Size returns the number of bytes written so far.
func (w *SHA256Writer) Size() int64 {
	return w.n
}

// CalculateSHA256 returns the lowercase hex SHA-256 of reader.
func CalculateSHA256(reader io.Reader) (string, error) {
	w := NewSHA256Writer()
	if _, err := io.Copy(w, reader); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	return w.Sum(), nil
}

// VerifySHA256 reports whether reader hashes to expected. The comparison is
// case-insensitive and constant-time.
func VerifySHA256(reader io.Reader, expected string) (bool, error) {
	actual, err := CalculateSHA256(reader)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(strings.ToLower(expected))) == 1, nil
}
