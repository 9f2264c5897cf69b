// Package hashutil includes all hash-function related helpers for the flora
// price oracle. State hashes and source fingerprints are SHA-384 per the
// HCS-17 state hash convention.
package hashutil

import (
	"crypto/sha512"
	"encoding/hex"
)

// Hash defines a function that returns the SHA-384 digest of the data.
func Hash(data []byte) [48]byte {
	return sha512.Sum384(data)
}

// HashHex returns the lowercase hex encoding of the SHA-384 digest of the
// data. All hashes on the wire (state hashes, fingerprints) use this form.
func HashHex(data []byte) string {
	h := Hash(data)
	return hex.EncodeToString(h[:])
}
