package checksum

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// chunkSize is the read buffer used when streaming input into the MAC.
const chunkSize = 1024

// DefaultAlgorithm is the HMAC algorithm used when none is configured.
const DefaultAlgorithm = "HmacSHA256"

var (
	// ErrUnsupportedAlgorithm is returned for algorithm names with no known hash.
	ErrUnsupportedAlgorithm = errors.New("unsupported HMAC algorithm")
	// ErrInvalidKey is returned when the secret key is empty.
	ErrInvalidKey = errors.New("invalid HMAC key")
	// ErrIO wraps failures to fully read the input.
	ErrIO = errors.New("failed to read input")
)

// algorithms maps canonical algorithm names to hash constructors. Lookups are
// case-insensitive and accept the bare hash name ("sha256") as well.
var algorithms = map[string]func() hash.Hash{
	"HmacMD5":        md5.New,
	"HmacSHA1":       sha1.New,
	"HmacSHA224":     sha256.New224,
	"HmacSHA256":     sha256.New,
	"HmacSHA384":     sha512.New384,
	"HmacSHA512":     sha512.New,
	"HmacSHA512/224": sha512.New512_224,
	"HmacSHA512/256": sha512.New512_256,
	"HmacSHA3-224":   sha3.New224,
	"HmacSHA3-256":   sha3.New256,
	"HmacSHA3-384":   sha3.New384,
	"HmacSHA3-512":   sha3.New512,
}

// lookup resolves an algorithm name to its canonical form and constructor.
func lookup(algorithm string) (string, func() hash.Hash, bool) {
	name := strings.ToLower(strings.TrimSpace(algorithm))
	if name == "" {
		return "", nil, false
	}
	if !strings.HasPrefix(name, "hmac") {
		name = "hmac" + name
	}
	for canonical, fn := range algorithms {
		if strings.ToLower(canonical) == name {
			return canonical, fn, true
		}
	}
	return "", nil, false
}

// IsSupported reports whether algorithm names a known HMAC algorithm.
func IsSupported(algorithm string) bool {
	_, _, ok := lookup(algorithm)
	return ok
}

// CanonicalAlgorithm returns the canonical spelling of algorithm, e.g.
// "sha256" -> "HmacSHA256".
func CanonicalAlgorithm(algorithm string) (string, error) {
	name, _, ok := lookup(algorithm)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return name, nil
}

// SupportedAlgorithms returns the canonical names of all supported algorithms.
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputeHMAC streams reader through an HMAC keyed with key and returns the
// digest as lowercase hex.
func ComputeHMAC(reader io.Reader, key []byte, algorithm string) (string, error) {
	_, newHash, ok := lookup(algorithm)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	if len(key) == 0 {
		return "", ErrInvalidKey
	}

	mac := hmac.New(newHash, key)
	buf := make([]byte, chunkSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			mac.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ComputeHMACFile opens the file at path and returns its HMAC digest. The
// result is identical to ComputeHMAC over the same bytes.
func ComputeHMACFile(path string, key []byte, algorithm string) (string, error) {
	// Argument errors take precedence over a missing file.
	if !IsSupported(algorithm) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	if len(key) == 0 {
		return "", ErrInvalidKey
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()

	return ComputeHMAC(f, key, algorithm)
}

// VerifyHMAC computes the digest of reader and compares it to expected in
// constant time. A malformed expected value simply does not match.
func VerifyHMAC(reader io.Reader, key []byte, algorithm, expected string) (bool, error) {
	actual, err := ComputeHMAC(reader, key, algorithm)
	if err != nil {
		return false, err
	}

	want, err := hex.DecodeString(strings.ToLower(expected))
	if err != nil {
		return false, nil
	}
	got, _ := hex.DecodeString(actual)

	return hmac.Equal(got, want), nil
}
