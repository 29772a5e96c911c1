package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	// Extensible: add more algorithms here
)

// Hasher provides extensible content hashing
type Hasher struct {
	algorithm Algorithm
}

// New creates a new hasher with the specified algorithm
func New(algorithm Algorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// Default returns a hasher with the default algorithm
func Default() *Hasher {
	return New(SHA256)
}

// Sum computes a hex-encoded hash of the input data
func (h *Hasher) Sum(data []byte) string {
	switch h.algorithm {
	case SHA256:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// Content is the canonical content hash used to decide whether a
// re-uploaded archive is byte-identical to the stored one.
func Content(data []byte) string {
	return Default().Sum(data)
}

// Short returns the display form of a full hash.
func Short(full string) string {
	if len(full) < 12 {
		return full
	}
	return full[:12]
}
