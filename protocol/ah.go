package protocol

// AHHeader is the IPsec Authentication Header of spec §6: a fixed 12-byte
// portion (next header, payload length, reserved, SPI, sequence number)
// followed by a variable-length ICV whose size is fixed per negotiated
// HMAC suite.
type AHHeader struct {
	NextHeader  uint8
	PayloadLen  uint8 // AH length in 4-byte words minus 2, per RFC 4302
	SPI         uint32
	SequenceNum uint32
	ICV         []byte
}

const ahFixedLen = 12

// PeekAHSPI reads the SPI out of an AH datagram's fixed 12-byte portion
// without knowing the ICV length yet — the SPI is what the SADB lookup
// needs to find the negotiated HMAC suite (and hence the ICV length) in
// the first place, per spec §4.6 step (b).
func PeekAHSPI(b []byte) (uint32, error) {
	if len(b) < ahFixedLen {
		return 0, Errf(MalformedPacket, "AH header truncated")
	}
	return ReadB32(b, 4), nil
}

func DecodeAHHeader(b []byte, icvLen int) (*AHHeader, int, error) {
	if len(b) < ahFixedLen+icvLen {
		return nil, 0, Errf(MalformedPacket, "AH header truncated")
	}
	h := &AHHeader{
		NextHeader: b[0],
		PayloadLen: b[1],
		// b[2:4] reserved, must be zero.
		SPI:         ReadB32(b, 4),
		SequenceNum: ReadB32(b, 8),
		ICV:         append([]byte{}, b[ahFixedLen:ahFixedLen+icvLen]...),
	}
	if b[2] != 0 || b[3] != 0 {
		return nil, 0, Errf(MalformedPacket, "AH reserved field not zero")
	}
	return h, ahFixedLen + icvLen, nil
}

func (h *AHHeader) Encode() []byte {
	b := make([]byte, ahFixedLen+len(h.ICV))
	b[0] = h.NextHeader
	b[1] = h.PayloadLen
	WriteB32(b, 4, h.SPI)
	WriteB32(b, 8, h.SequenceNum)
	copy(b[ahFixedLen:], h.ICV)
	return b
}

// AHPayloadLenWords computes the PayloadLen field for a given ICV size,
// expressed in 4-byte words of the AH header minus 2, per RFC 4302 §2.2.
func AHPayloadLenWords(icvLen int) uint8 {
	totalWords := (ahFixedLen + icvLen) / 4
	return uint8(totalWords - 2)
}
