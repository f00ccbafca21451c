package protocol

// ParameterType identifies a HIP TLV parameter, per spec §3.
type ParameterType uint16

const (
	ParamR1Counter      ParameterType = 129
	ParamPuzzle         ParameterType = 257
	ParamSolution       ParameterType = 321
	ParamDiffieHellman  ParameterType = 513
	ParamHIPTransform   ParameterType = 577
	ParamESPTransform   ParameterType = 4095
	ParamHostID         ParameterType = 705
	ParamHMAC           ParameterType = 61505
	ParamHIPSignature   ParameterType = 61697
)

func (t ParameterType) String() string {
	switch t {
	case ParamR1Counter:
		return "R1_COUNTER"
	case ParamPuzzle:
		return "PUZZLE"
	case ParamSolution:
		return "SOLUTION"
	case ParamDiffieHellman:
		return "DIFFIE_HELLMAN"
	case ParamHIPTransform:
		return "HIP_TRANSFORM"
	case ParamESPTransform:
		return "ESP_TRANSFORM"
	case ParamHostID:
		return "HOST_ID"
	case ParamHMAC:
		return "HMAC"
	case ParamHIPSignature:
		return "HIP_SIGNATURE"
	default:
		return "ParameterType(?)"
	}
}

// paramHeader is the 4-byte TLV header {type(2), length(2)} that precedes
// every parameter's value, which is itself padded to an 8-byte boundary.
type paramHeader struct {
	Type   ParameterType
	Length uint16 // length of the value, excluding header and padding
}

const paramHeaderLen = 4

func decodeParamHeader(b []byte) (paramHeader, error) {
	if len(b) < paramHeaderLen {
		return paramHeader{}, Errf(MalformedPacket, "parameter header truncated")
	}
	return paramHeader{
		Type:   ParameterType(ReadB16(b, 0)),
		Length: ReadB16(b, 2),
	}, nil
}

func (h paramHeader) encode() []byte {
	b := make([]byte, paramHeaderLen)
	WriteB16(b, 0, uint16(h.Type))
	WriteB16(b, 2, h.Length)
	return b
}

// encodeTLV wraps value in its parameter header and pads the whole
// parameter out to an 8-byte boundary, per spec §6.
func encodeTLV(t ParameterType, value []byte) []byte {
	h := paramHeader{Type: t, Length: uint16(len(value))}
	out := append(h.encode(), value...)
	return append(out, make([]byte, padTo8(len(out)))...)
}
