package protocol

// Parameters is the ordered list of TLVs in a HIP control message. Order
// matters for the HMAC/SIGNATURE coverage rule of spec §4.2: each of
// those two parameters covers every parameter that precedes it on the
// wire, so callers must Add in the order they intend to transmit.
type Parameters struct {
	items []Parameter
}

func (p *Parameters) Add(param Parameter) { p.items = append(p.items, param) }

func (p *Parameters) All() []Parameter { return p.items }

// Get returns the first parameter of the given type, or nil.
func (p *Parameters) Get(t ParameterType) Parameter {
	for _, item := range p.items {
		if item.Type() == t {
			return item
		}
	}
	return nil
}

// Encode serializes every parameter in order, each padded to an 8-byte
// boundary per spec §6.
func (p *Parameters) Encode() []byte {
	var out []byte
	for _, item := range p.items {
		out = append(out, encodeTLV(item.Type(), item.Encode())...)
	}
	return out
}

// Message is a decoded HIP control packet: its 40-byte header plus the
// ordered parameters that followed it.
type Message struct {
	Header     *Header
	Parameters *Parameters
	// Raw is the undecoded byte range covering Header+Parameters, as
	// received. The HMAC/SIGNATURE checks in package hip do not read it;
	// they re-encode the decoded parameters.
	Raw []byte
}

func (m *Message) Encode() []byte {
	body := m.Parameters.Encode()
	m.Header.HeaderLength = uint8((len(body) + 2*HITLen) / 8)
	return append(m.Header.Encode(), body...)
}

// DecodeMessage parses a full HIP control packet, stopping at the first
// malformed parameter.
func DecodeMessage(b []byte) (*Message, error) {
	hdr, err := DecodeHeader(b)
	if err != nil {
		return nil, err
	}
	params, err := decodeParameters(b[HeaderLen:])
	if err != nil {
		return nil, err
	}
	return &Message{Header: hdr, Parameters: params, Raw: b}, nil
}

// decodeParameters walks the TLV stream, decoding each parameter by type
// and skipping its trailing padding.
func decodeParameters(b []byte) (*Parameters, error) {
	out := &Parameters{}
	for len(b) > 0 {
		ph, err := decodeParamHeader(b)
		if err != nil {
			return nil, err
		}
		start := paramHeaderLen
		end := start + int(ph.Length)
		if end > len(b) {
			return nil, Errf(MalformedPacket, "parameter %s value truncated", ph.Type)
		}
		value := b[start:end]

		param, err := decodeOne(ph.Type, value)
		if err != nil {
			return nil, err
		}
		out.Add(param)

		consumed := end + padTo8(end)
		if consumed > len(b) {
			return nil, Errf(MalformedPacket, "parameter %s padding truncated", ph.Type)
		}
		b = b[consumed:]
	}
	return out, nil
}

func decodeOne(t ParameterType, value []byte) (Parameter, error) {
	switch t {
	case ParamR1Counter:
		return DecodeR1Counter(value)
	case ParamPuzzle:
		return DecodePuzzle(value)
	case ParamSolution:
		return DecodeSolution(value, 8)
	case ParamDiffieHellman:
		return DecodeDiffieHellman(value)
	case ParamHIPTransform:
		return DecodeHIPTransform(value)
	case ParamESPTransform:
		return DecodeESPTransform(value)
	case ParamHostID:
		return DecodeHostID(value)
	case ParamHMAC:
		return DecodeHMAC(value)
	case ParamHIPSignature:
		return DecodeHIPSignature(value)
	default:
		return nil, Errf(MalformedPacket, "unknown parameter type %d", uint16(t))
	}
}

// HMACCoverage returns the header+parameters bytes that an HMAC parameter
// at the given byte offset is defined to cover: everything before it,
// exactly as it appears in raw (the header's length field is not altered).
func HMACCoverage(raw []byte, hmacOffset int) []byte {
	return raw[:hmacOffset]
}
