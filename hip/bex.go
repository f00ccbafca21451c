package hip

import (
	"crypto/hmac"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/identity"
	"github.com/hipvpls/core/protocol"
)

// BuildI1 creates the initiator trigger packet: just the two HITs, no
// parameters, per spec §4.2 ("I1 (initiator trigger, contains
// sender/receiver HIT)").
func BuildI1(senderHIT, receiverHIT protocol.HIT) *protocol.Message {
	return &protocol.Message{
		Header: &protocol.Header{
			PacketType:  protocol.I1,
			SenderHIT:   senderHIT,
			ReceiverHIT: receiverHIT,
		},
		Parameters: &protocol.Parameters{},
	}
}

// BuildR1 creates the responder's stateless challenge: PUZZLE, the
// responder's DH public value, its HOST_ID, and a SIGNATURE covering
// everything before it. No Tkm/Session is allocated to build this
// message, per spec §4.2's "R1 responder is stateless": randomI and
// opaque come from the router's keyed puzzle secret and epoch-scoped DH
// cache (hip/cookie.go), not from any per-peer state.
func BuildR1(cfg *Config, local *identity.LocalIdentity, senderHIT, receiverHIT protocol.HIT, groupID crypto.GroupId, dhPublicValue, randomI []byte, opaque uint16, r1Counter uint64) (*protocol.Message, error) {
	msg := &protocol.Message{
		Header: &protocol.Header{
			PacketType:  protocol.R1,
			SenderHIT:   senderHIT,
			ReceiverHIT: receiverHIT,
		},
		Parameters: &protocol.Parameters{},
	}
	msg.Parameters.Add(&protocol.R1CounterParam{Counter: r1Counter})
	msg.Parameters.Add(&protocol.PuzzleParam{K: cfg.PuzzleK, Opaque: opaque, RandomI: randomI})
	msg.Parameters.Add(&protocol.DiffieHellmanParam{
		GroupID:     uint8(groupID),
		PublicValue: dhPublicValue,
	})
	msg.Parameters.Add(&protocol.HIPTransformParam{SuiteIDs: cfg.OfferedHIPTransform()})
	msg.Parameters.Add(&protocol.ESPTransformParam{SuiteIDs: cfg.OfferedESPTransform()})
	msg.Parameters.Add(&protocol.HostIDParam{
		Algorithm:    uint16(local.Signer.Profile()),
		HostIdentity: local.Signer.PublicKeyBytes(),
	})
	if err := signMessage(msg, local.Signer); err != nil {
		return nil, err
	}
	return msg, nil
}

// CheckR1 verifies R1's SIGNATURE against the Host Identity it carries,
// and that the claimed sender HIT matches that identity.
func CheckR1(msg *protocol.Message) (*protocol.HostIDParam, error) {
	hostID, ok := msg.Parameters.Get(protocol.ParamHostID).(*protocol.HostIDParam)
	if !ok {
		return nil, protocol.Errf(protocol.MalformedPacket, "R1 missing HOST_ID")
	}
	if identity.DeriveHIT(hostID.HostIdentity) != msg.Header.SenderHIT {
		return nil, protocol.Errf(protocol.AuthFailure, "R1 sender HIT does not match HOST_ID")
	}
	if err := verifySignature(msg, hostID); err != nil {
		return nil, err
	}
	return hostID, nil
}

// BuildI2 creates the initiator's puzzle answer: SOLUTION, the
// initiator's DH public value, the selected HIP_TRANSFORM, its own
// HOST_ID, an HMAC over everything before it, and a SIGNATURE over
// everything before it including that HMAC, per spec §4.2/§6. solutionJ
// must be the same bytes the caller already fed to DeriveSAKeys, so the
// SOLUTION echoed on the wire and the HKDF salt used to derive tkm's keys
// agree; PUZZLE's Opaque is echoed back unchanged so the responder can
// recover which epoch's secret/DH keypair issued the challenge.
func BuildI2(cfg *Config, local *identity.LocalIdentity, senderHIT, receiverHIT protocol.HIT, tkm *Tkm, puzzle *protocol.PuzzleParam, solutionJ []byte, selectedHMAC crypto.HmacId) (*protocol.Message, error) {
	msg := &protocol.Message{
		Header: &protocol.Header{
			PacketType:  protocol.I2,
			SenderHIT:   senderHIT,
			ReceiverHIT: receiverHIT,
		},
		Parameters: &protocol.Parameters{},
	}
	msg.Parameters.Add(&protocol.SolutionParam{K: puzzle.K, Opaque: puzzle.Opaque, RandomI: puzzle.RandomI, SolutionJ: solutionJ})
	msg.Parameters.Add(&protocol.DiffieHellmanParam{
		GroupID:     uint8(tkm.groupID),
		PublicValue: tkm.PublicValue(),
	})
	msg.Parameters.Add(&protocol.HIPTransformParam{SuiteIDs: []uint16{uint16(selectedHMAC)}})
	msg.Parameters.Add(&protocol.HostIDParam{
		Algorithm:    uint16(local.Signer.Profile()),
		HostIdentity: local.Signer.PublicKeyBytes(),
	})
	if err := appendHMAC(msg, tkm.OutboundKey(), selectedHMAC); err != nil {
		return nil, err
	}
	if err := signMessage(msg, local.Signer); err != nil {
		return nil, err
	}
	return msg, nil
}

// CheckI2 verifies I2 in the mandatory order of spec §4.2: puzzle
// solution, then HMAC (requires the session's derived keys already be
// available), then SIGNATURE against the claimed HOST_ID.
func CheckI2(msg *protocol.Message, tkm *Tkm) (*protocol.HostIDParam, error) {
	sol, ok := msg.Parameters.Get(protocol.ParamSolution).(*protocol.SolutionParam)
	if !ok {
		return nil, protocol.Errf(protocol.MalformedPacket, "I2 missing SOLUTION")
	}
	if !tkm.VerifyPuzzle(sol.SolutionJ, msg.Header.SenderHIT, msg.Header.ReceiverHIT) {
		return nil, protocol.Errf(protocol.PuzzleFailed, "I2 solution does not verify")
	}

	hostID, ok := msg.Parameters.Get(protocol.ParamHostID).(*protocol.HostIDParam)
	if !ok {
		return nil, protocol.Errf(protocol.MalformedPacket, "I2 missing HOST_ID")
	}
	if identity.DeriveHIT(hostID.HostIdentity) != msg.Header.SenderHIT {
		return nil, protocol.Errf(protocol.AuthFailure, "I2 sender HIT does not match HOST_ID")
	}

	if err := verifyHMAC(msg, tkm.InboundKey(), tkm.hmacID); err != nil {
		return nil, err
	}
	if err := verifySignature(msg, hostID); err != nil {
		return nil, err
	}
	return hostID, nil
}

// BuildR2 creates the responder's confirmation: an HMAC and a SIGNATURE,
// no other parameters, per spec §4.2.
func BuildR2(local *identity.LocalIdentity, senderHIT, receiverHIT protocol.HIT, tkm *Tkm, hmacID crypto.HmacId) (*protocol.Message, error) {
	msg := &protocol.Message{
		Header: &protocol.Header{
			PacketType:  protocol.R2,
			SenderHIT:   senderHIT,
			ReceiverHIT: receiverHIT,
		},
		Parameters: &protocol.Parameters{},
	}
	if err := appendHMAC(msg, tkm.OutboundKey(), hmacID); err != nil {
		return nil, err
	}
	if err := signMessage(msg, local.Signer); err != nil {
		return nil, err
	}
	return msg, nil
}

// CheckR2 verifies R2's HMAC using the session's already-derived inbound
// key. There is no HOST_ID on R2, so signature verification is against
// the Host Identity already learned from R1.
func CheckR2(msg *protocol.Message, tkm *Tkm, peerSigner crypto.Signer) error {
	if err := verifyHMAC(msg, tkm.InboundKey(), tkm.hmacID); err != nil {
		return err
	}
	return verifySignatureAgainst(msg, peerSigner)
}

// appendHMAC adds an HMAC parameter covering every parameter added so
// far, per spec §4.2's "HMAC TLV covers all preceding TLVs".
func appendHMAC(msg *protocol.Message, key []byte, hmacID crypto.HmacId) error {
	coverage := msg.Parameters.Encode()
	tag := crypto.HMAC(hmacID, key, headerAndBody(msg.Header, coverage))
	msg.Parameters.Add(&protocol.HMACParam{Value: tag})
	return nil
}

func verifyHMAC(msg *protocol.Message, key []byte, hmacID crypto.HmacId) error {
	hmacParam, coverage, err := splitAtParam(msg, protocol.ParamHMAC)
	if err != nil {
		return err
	}
	hp, ok := hmacParam.(*protocol.HMACParam)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "expected HMAC parameter")
	}
	expected := crypto.HMAC(hmacID, key, headerAndBody(msg.Header, coverage))
	if !hmac.Equal(expected, hp.Value) {
		return protocol.Errf(protocol.AuthFailure, "HMAC mismatch")
	}
	return nil
}

// signMessage appends a SIGNATURE parameter covering every parameter
// added so far, including any HMAC, per spec §4.2/§6.
func signMessage(msg *protocol.Message, signer crypto.Signer) error {
	coverage := msg.Parameters.Encode()
	sig, err := signer.Sign(headerAndBody(msg.Header, coverage))
	if err != nil {
		return err
	}
	msg.Parameters.Add(&protocol.HIPSignatureParam{Algorithm: uint16(signer.Profile()), Signature: sig})
	return nil
}

func verifySignature(msg *protocol.Message, hostID *protocol.HostIDParam) error {
	signer, err := signerFromHostID(hostID)
	if err != nil {
		return err
	}
	return verifySignatureAgainst(msg, signer)
}

func verifySignatureAgainst(msg *protocol.Message, signer crypto.Signer) error {
	sigParam, coverage, err := splitAtParam(msg, protocol.ParamHIPSignature)
	if err != nil {
		return err
	}
	sp, ok := sigParam.(*protocol.HIPSignatureParam)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "expected HIP_SIGNATURE parameter")
	}
	if err := signer.Verify(headerAndBody(msg.Header, coverage), sp.Signature); err != nil {
		return protocol.Errf(protocol.AuthFailure, "signature verify failed: %v", err)
	}
	return nil
}

func signerFromHostID(hostID *protocol.HostIDParam) (crypto.Signer, error) {
	return crypto.SignerFromPublicKey(crypto.HIProfile(hostID.Algorithm), hostID.HostIdentity)
}

// splitAtParam finds the named parameter and returns it along with the
// encoded bytes of every parameter preceding it, the coverage rule both
// HMAC and SIGNATURE rely on.
func splitAtParam(msg *protocol.Message, t protocol.ParameterType) (protocol.Parameter, []byte, error) {
	var coverage []byte
	for _, p := range msg.Parameters.All() {
		if p.Type() == t {
			return p, coverage, nil
		}
		coverage = append(coverage, encodeOne(p)...)
	}
	return nil, nil, protocol.Errf(protocol.MalformedPacket, "missing parameter %s", t)
}

func encodeOne(p protocol.Parameter) []byte {
	tmp := &protocol.Parameters{}
	tmp.Add(p)
	return tmp.Encode()
}

// headerAndBody renders the header with HeaderLength zeroed, the same
// "zero the self-referential field before authenticating" technique
// spec §4.6 uses for the AH ICV: the field's final value depends on how
// many parameters follow, so both builder and checker sign/verify
// against a placeholder instead of the as-yet-unknown final length.
func headerAndBody(h *protocol.Header, body []byte) []byte {
	cp := *h
	cp.HeaderLength = 0
	return append(cp.Encode(), body...)
}
