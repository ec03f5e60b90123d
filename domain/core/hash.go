package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Short returns the first 12 hex digits, enough to tell inputs apart in logs.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// SampleHash fingerprints paired samples by their exact bit patterns.
// The lengths are part of the digest so (x, y) splits cannot collide.
func SampleHash(x, y []float64) Hash {
	buf := make([]byte, 0, 16+8*(len(x)+len(y)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(x)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(y)))
	for _, v := range x {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	for _, v := range y {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return NewHash(buf)
}
