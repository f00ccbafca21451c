package crypto

import (
	"crypto/rand"
	"encoding/binary"
)

// PuzzleSolve finds a J such that the low K bits of
// hash(I || hitI || hitR || J) are zero, per spec §4.1. The search is a
// plain incrementing counter seeded randomly; K is small enough in
// practice (a handful of bits) that this terminates quickly. J is always
// the counter's 8-byte big-endian encoding.
func PuzzleSolve(I []byte, K int, hitI, hitR []byte) ([]byte, error) {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	j := binary.BigEndian.Uint64(seed[:])
	for {
		J := make([]byte, 8)
		binary.BigEndian.PutUint64(J, j)
		if zeroBits(puzzleDigest(I, hitI, hitR, J)) >= K {
			return J, nil
		}
		j++
	}
}

// PuzzleVerify reports whether J solves the puzzle (I, K, hitI, hitR).
func PuzzleVerify(I, J []byte, K int, hitI, hitR []byte) bool {
	return zeroBits(puzzleDigest(I, hitI, hitR, J)) >= K
}

func puzzleDigest(I, hitI, hitR, J []byte) []byte {
	msg := append(append(append(append([]byte{}, I...), hitI...), hitR...), J...)
	return Hash(msg)
}

// zeroBits counts the low-order zero bits of digest, starting from the
// least significant bit of its last byte.
func zeroBits(digest []byte) int {
	count := 0
	for i := len(digest) - 1; i >= 0; i-- {
		b := digest[i]
		if b == 0 {
			count += 8
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				return count
			}
			count++
		}
	}
	return count
}
