package crypto

import (
	"crypto/aes"

	"github.com/dgryski/go-camellia"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// EspCipherId names a negotiable ESP_TRANSFORM encryption algorithm.
// Per spec §9, the ESP transform is carried on the wire and recorded on
// the SA for HIP-compatibility only; nothing in the AH data plane ever
// calls EspCipher.BlockSize or constructs a cipher.Block from it.
type EspCipherId uint16

const (
	EspCipherNone     EspCipherId = 0
	EspCipherAES128   EspCipherId = 12
	EspCipherCamellia EspCipherId = 23
)

// EspCipher describes the reserved, unused encryption algorithm a peer
// offered in an ESP_TRANSFORM parameter.
type EspCipher struct {
	ID        EspCipherId
	BlockSize int
	KeyLen    int
}

var espLogger = kitlog.NewNopLogger()

// SelectEspCipher records which reserved ESP cipher id and key length a
// transform negotiation picked, without ever touching key material.
// Mirrors the teacher's cipherTransform/_cipherTransform dispatch, kept
// here because spec §9 insists the field survive future activation.
func SelectEspCipher(id EspCipherId, keyLenBits int) (*EspCipher, bool) {
	var blockSize int
	switch id {
	case EspCipherAES128:
		blockSize = aes.BlockSize
	case EspCipherCamellia:
		blockSize = camellia.BlockSize
	case EspCipherNone:
		blockSize = 0
	default:
		return nil, false
	}
	level.Debug(espLogger).Log(
		"msg", "esp transform selected (reserved, unused)",
		"id", id, "keyLenBits", keyLenBits)
	return &EspCipher{ID: id, BlockSize: blockSize, KeyLen: keyLenBits / 8}, true
}
