// Package values holds the value objects of the plugin domain.
package values

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Digest is the content fingerprint of a plugin file: a hash of the bytes
// read at load time. Reload passes compare digests, never modification times,
// to decide whether a file changed.
type Digest struct {
	algorithm string
	value     string // hex-encoded hash
}

// NewDigest creates a digest from an algorithm name and hex value.
func NewDigest(algorithm, hexValue string) (Digest, error) {
	if algorithm != "sha256" {
		return Digest{}, fmt.Errorf("unsupported digest algorithm: %s", algorithm)
	}

	return Digest{
		algorithm: algorithm,
		value:     hexValue,
	}, nil
}

// ParseDigest parses a canonical digest string (e.g. "sha256:abc123...").
func ParseDigest(s string) (Digest, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Digest{}, fmt.Errorf("invalid digest format: %s", s)
	}
	return NewDigest(parts[0], parts[1])
}

// String returns the canonical digest string.
func (d Digest) String() string {
	return fmt.Sprintf("%s:%s", d.algorithm, d.value)
}

// Algorithm returns the hash algorithm.
func (d Digest) Algorithm() string {
	return d.algorithm
}

// Value returns the hex-encoded hash value.
func (d Digest) Value() string {
	return d.value
}

// Equals checks equality with another digest.
func (d Digest) Equals(other Digest) bool {
	return d.algorithm == other.algorithm && d.value == other.value
}

// IsZero reports whether the digest is the zero value.
func (d Digest) IsZero() bool {
	return d.algorithm == "" && d.value == ""
}

// ComputeDigest computes the SHA-256 digest of the reader's contents.
func ComputeDigest(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, err
	}
	return Digest{
		algorithm: "sha256",
		value:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// ComputeFileDigest computes the SHA-256 digest of a file's current contents.
// The file handle is released before returning, on every path.
func ComputeFileDigest(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer func() { _ = f.Close() }()

	return ComputeDigest(f)
}
