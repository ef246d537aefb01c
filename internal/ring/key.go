package ring

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
)

// Key is a position in the ring's key space: a SHA-1 digest read as a
// big-endian unsigned integer.
type Key [sha1.Size]byte

// Hash maps an identifier (node tag or lookup key) onto the ring.
func Hash(s string) Key {
	return sha1.Sum([]byte(s))
}

// Compare returns -1, 0 or +1 depending on whether k is numerically less
// than, equal to or greater than other.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k[:], other[:])
}

// Less reports whether k sorts before other.
func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

// String returns the lowercase hex digest.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}
