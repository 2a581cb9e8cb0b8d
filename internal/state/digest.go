package state

import (
	"encoding/hex"
	"hash"

	"lukechampine.com/blake3"
)

// NewDigest returns the content hash used to recognise identical files.
func NewDigest() hash.Hash {
	return blake3.New(32, nil)
}

// DigestString renders a finished digest.
func DigestString(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
