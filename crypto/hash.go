// Package crypto provides the cryptographic primitives the HIP base
// exchange and AH data plane are built on: hashing, HMAC, Diffie-Hellman
// group arithmetic, the responder puzzle, key derivation, host identity
// signatures, and a reserved (unused) ESP cipher registry.
package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// HmacId names a negotiable HMAC transform for the HIP_TRANSFORM TLV.
type HmacId uint16

const (
	HMAC_SHA256_128 HmacId = 1
	HMAC_SHA1_96    HmacId = 2 // wire compatibility only, never the default
)

// ICVLen returns the truncated ICV length, in bytes, carried in an AH
// header for the given transform.
func (h HmacId) ICVLen() int {
	switch h {
	case HMAC_SHA1_96:
		return 12
	default:
		return 16
	}
}

func (h HmacId) hashNew() func() hash.Hash {
	if h == HMAC_SHA1_96 {
		return sha1.New
	}
	return sha256.New
}

// Hash returns the unkeyed digest of msg under the router's default hash
// (SHA-256), used by the puzzle.
func Hash(msg []byte) []byte {
	sum := sha256.Sum256(msg)
	return sum[:]
}

// HMAC computes a tag over msg under key, truncated to the transform's
// ICV length.
func HMAC(id HmacId, key, msg []byte) []byte {
	mac := hmac.New(id.hashNew(), key)
	mac.Write(msg)
	full := mac.Sum(nil)
	return full[:id.ICVLen()]
}
