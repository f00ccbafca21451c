package protocol

// Parameter is satisfied by every HIP TLV payload type below. Mirrors the
// teacher's per-payload KePayload/NoncePayload/AuthPayload shape: each
// parameter knows its own wire type and how to marshal itself.
type Parameter interface {
	Type() ParameterType
	Encode() []byte
}

// R1CounterParam lets a responder advertise its current puzzle-difficulty
// generation, per spec §3.
type R1CounterParam struct {
	Counter uint64
}

func (p *R1CounterParam) Type() ParameterType { return ParamR1Counter }

func (p *R1CounterParam) Encode() []byte {
	b := make([]byte, 12)
	WriteB32(b, 0, 0) // reserved
	WriteB32(b, 4, uint32(p.Counter>>32))
	WriteB32(b, 8, uint32(p.Counter))
	return b
}

func DecodeR1Counter(v []byte) (*R1CounterParam, error) {
	if len(v) < 12 {
		return nil, Errf(MalformedPacket, "R1_COUNTER truncated")
	}
	hi := ReadB32(v, 4)
	lo := ReadB32(v, 8)
	return &R1CounterParam{Counter: uint64(hi)<<32 | uint64(lo)}, nil
}

// PuzzleParam is the responder's client puzzle challenge of spec §4.3.
type PuzzleParam struct {
	K        uint8
	Lifetime uint8
	Opaque   uint16
	RandomI  []byte
}

func (p *PuzzleParam) Type() ParameterType { return ParamPuzzle }

func (p *PuzzleParam) Encode() []byte {
	b := make([]byte, 4+len(p.RandomI))
	b[0] = p.K
	b[1] = p.Lifetime
	WriteB16(b, 2, p.Opaque)
	copy(b[4:], p.RandomI)
	return b
}

func DecodePuzzle(v []byte) (*PuzzleParam, error) {
	if len(v) < 4 {
		return nil, Errf(MalformedPacket, "PUZZLE truncated")
	}
	return &PuzzleParam{
		K:        v[0],
		Lifetime: v[1],
		Opaque:   ReadB16(v, 2),
		RandomI:  append([]byte{}, v[4:]...),
	}, nil
}

// SolutionParam carries the initiator's puzzle answer back to the
// responder in I2, echoing the puzzle's K/Lifetime/Opaque/RandomI fields.
type SolutionParam struct {
	K         uint8
	Lifetime  uint8
	Opaque    uint16
	RandomI   []byte
	SolutionJ []byte
}

func (p *SolutionParam) Type() ParameterType { return ParamSolution }

func (p *SolutionParam) Encode() []byte {
	b := make([]byte, 4+len(p.RandomI)+len(p.SolutionJ))
	b[0] = p.K
	b[1] = p.Lifetime
	WriteB16(b, 2, p.Opaque)
	n := copy(b[4:], p.RandomI)
	copy(b[4+n:], p.SolutionJ)
	return b
}

func DecodeSolution(v []byte, randomLen int) (*SolutionParam, error) {
	if len(v) < 4+2*randomLen {
		return nil, Errf(MalformedPacket, "SOLUTION truncated")
	}
	return &SolutionParam{
		K:         v[0],
		Lifetime:  v[1],
		Opaque:    ReadB16(v, 2),
		RandomI:   append([]byte{}, v[4:4+randomLen]...),
		SolutionJ: append([]byte{}, v[4+randomLen:4+2*randomLen]...),
	}, nil
}

// DiffieHellmanParam carries one party's public DH value and the group it
// was computed in, per spec §3/§4.2.
type DiffieHellmanParam struct {
	GroupID     uint8
	PublicValue []byte
}

func (p *DiffieHellmanParam) Type() ParameterType { return ParamDiffieHellman }

func (p *DiffieHellmanParam) Encode() []byte {
	b := make([]byte, 3+len(p.PublicValue))
	b[0] = p.GroupID
	WriteB16(b, 1, uint16(len(p.PublicValue)))
	copy(b[3:], p.PublicValue)
	return b
}

func DecodeDiffieHellman(v []byte) (*DiffieHellmanParam, error) {
	if len(v) < 3 {
		return nil, Errf(MalformedPacket, "DIFFIE_HELLMAN truncated")
	}
	n := ReadB16(v, 1)
	if len(v) < 3+int(n) {
		return nil, Errf(MalformedPacket, "DIFFIE_HELLMAN public value truncated")
	}
	return &DiffieHellmanParam{
		GroupID:     v[0],
		PublicValue: append([]byte{}, v[3:3+n]...),
	}, nil
}

// HIPTransformParam lists the HIT/HMAC suite ids a party is willing to
// negotiate, in preference order, per spec §3.
type HIPTransformParam struct {
	SuiteIDs []uint16
}

func (p *HIPTransformParam) Type() ParameterType { return ParamHIPTransform }

func (p *HIPTransformParam) Encode() []byte {
	b := make([]byte, 2*len(p.SuiteIDs))
	for i, id := range p.SuiteIDs {
		WriteB16(b, 2*i, id)
	}
	return b
}

func DecodeHIPTransform(v []byte) (*HIPTransformParam, error) {
	if len(v)%2 != 0 {
		return nil, Errf(MalformedPacket, "HIP_TRANSFORM length not a multiple of 2")
	}
	ids := make([]uint16, len(v)/2)
	for i := range ids {
		ids[i] = ReadB16(v, 2*i)
	}
	return &HIPTransformParam{SuiteIDs: ids}, nil
}

// ESPTransformParam lists the reserved ESP cipher ids offered, per spec §9.
type ESPTransformParam struct {
	SuiteIDs []uint16
}

func (p *ESPTransformParam) Type() ParameterType { return ParamESPTransform }

func (p *ESPTransformParam) Encode() []byte {
	b := make([]byte, 2+2*len(p.SuiteIDs))
	for i, id := range p.SuiteIDs {
		WriteB16(b, 2+2*i, id)
	}
	return b
}

func DecodeESPTransform(v []byte) (*ESPTransformParam, error) {
	if len(v) < 2 || (len(v)-2)%2 != 0 {
		return nil, Errf(MalformedPacket, "ESP_TRANSFORM malformed")
	}
	ids := make([]uint16, (len(v)-2)/2)
	for i := range ids {
		ids[i] = ReadB16(v, 2+2*i)
	}
	return &ESPTransformParam{SuiteIDs: ids}, nil
}

// HostIDParam carries a party's public Host Identity, from which the
// receiver recomputes and verifies the sender's HIT, per spec §3.
type HostIDParam struct {
	Algorithm    uint16
	HostIdentity []byte
}

func (p *HostIDParam) Type() ParameterType { return ParamHostID }

func (p *HostIDParam) Encode() []byte {
	b := make([]byte, 4+len(p.HostIdentity))
	WriteB16(b, 0, uint16(len(p.HostIdentity)))
	WriteB16(b, 2, p.Algorithm)
	copy(b[4:], p.HostIdentity)
	return b
}

func DecodeHostID(v []byte) (*HostIDParam, error) {
	if len(v) < 4 {
		return nil, Errf(MalformedPacket, "HOST_ID truncated")
	}
	hiLen := ReadB16(v, 0)
	if len(v) < 4+int(hiLen) {
		return nil, Errf(MalformedPacket, "HOST_ID identity truncated")
	}
	return &HostIDParam{
		Algorithm:    ReadB16(v, 2),
		HostIdentity: append([]byte{}, v[4:4+hiLen]...),
	}, nil
}

// HMACParam is the integrity check over every parameter preceding it,
// per spec §4.2.
type HMACParam struct {
	Value []byte
}

func (p *HMACParam) Type() ParameterType { return ParamHMAC }
func (p *HMACParam) Encode() []byte      { return append([]byte{}, p.Value...) }

func DecodeHMAC(v []byte) (*HMACParam, error) {
	return &HMACParam{Value: append([]byte{}, v...)}, nil
}

// HIPSignatureParam is the signature over every parameter preceding it,
// including the HMAC, per spec §4.2/§6.
type HIPSignatureParam struct {
	Algorithm uint16
	Signature []byte
}

func (p *HIPSignatureParam) Type() ParameterType { return ParamHIPSignature }

func (p *HIPSignatureParam) Encode() []byte {
	b := make([]byte, 2+len(p.Signature))
	WriteB16(b, 0, p.Algorithm)
	copy(b[2:], p.Signature)
	return b
}

func DecodeHIPSignature(v []byte) (*HIPSignatureParam, error) {
	if len(v) < 2 {
		return nil, Errf(MalformedPacket, "HIP_SIGNATURE truncated")
	}
	return &HIPSignatureParam{
		Algorithm: ReadB16(v, 0),
		Signature: append([]byte{}, v[2:]...),
	}, nil
}
