package hip

import (
	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/protocol"
)

// Tkm is the per-session keying-material state: the DH exchange, the
// puzzle nonces, and the derived SA keys. Mirrors the teacher's Tkm
// (NcCreate/DhCreate/DhGenerateKey/IsaCreate), narrowed to HIP's single
// HMAC-keyed SA pair instead of IKE's SK_ei/SK_er/SK_ai/SK_ar/SK_pi/SK_pr
// sextet.
type Tkm struct {
	isInitiator bool
	groupID     crypto.GroupId

	ka *crypto.KeyAgreement

	// puzzleI/puzzleK record the challenge VerifyPuzzle checks I2's
	// SOLUTION against; seeded from the wire by SeedPuzzleFromSolution
	// since R1's own puzzle is generated statelessly, with no Tkm alive
	// yet to remember it.
	puzzleI []byte
	puzzleK uint8

	hmacID crypto.HmacId

	// keyI2R/keyR2I are the derived SA HMAC keys once BEX completes.
	keyI2R, keyR2I []byte
}

// NewTkmInitiator creates the DH keypair an initiator sends in I2.
func NewTkmInitiator(groupID crypto.GroupId, hmacID crypto.HmacId) (*Tkm, error) {
	ka, err := crypto.NewKeyAgreement(groupID)
	if err != nil {
		return nil, err
	}
	return &Tkm{isInitiator: true, groupID: groupID, ka: ka, hmacID: hmacID}, nil
}

// NewTkmResponderFromKeyAgreement wraps a responder Tkm around an
// already-generated DH keypair — the one the matching stateless R1 was
// built from — instead of minting a fresh one, so computing the shared
// secret against I2's DIFFIE_HELLMAN lands on the same private key the
// peer's public value was actually exchanged against.
func NewTkmResponderFromKeyAgreement(ka *crypto.KeyAgreement, groupID crypto.GroupId, hmacID crypto.HmacId) *Tkm {
	return &Tkm{isInitiator: false, groupID: groupID, ka: ka, hmacID: hmacID}
}

func (t *Tkm) PublicValue() []byte {
	return t.ka.PublicKeyBytes()
}

// ComputeShared runs the DH agreement against the peer's public value.
func (t *Tkm) ComputeShared(theirPublic []byte) error {
	_, err := t.ka.SharedFromBytes(theirPublic)
	return err
}

// SeedPuzzleFromSolution records the puzzle challenge an I2's SOLUTION
// claims to answer, so VerifyPuzzle has something to check against even
// though this Tkm never generated the challenge itself — the responder's
// R1 puzzle is now produced statelessly, before any Tkm for this peer
// exists.
func (t *Tkm) SeedPuzzleFromSolution(sol *protocol.SolutionParam) {
	t.puzzleI = sol.RandomI
	t.puzzleK = sol.K
}

// VerifyPuzzle is the responder's half, checked against I2's SOLUTION.
func (t *Tkm) VerifyPuzzle(J []byte, hitI, hitR protocol.HIT) bool {
	return crypto.PuzzleVerify(t.puzzleI, J, int(t.puzzleK), hitI[:], hitR[:])
}

// DeriveSAKeys runs the HKDF key derivation over the DH shared secret
// once both DH public values have been exchanged, producing the two
// directional HMAC keys the SADB will hold. randomI/solutionJ must be the
// literal bytes both sides exchanged on the wire (I2's echoed PUZZLE
// RandomI and SOLUTION SolutionJ), not whatever a Tkm happens to have
// cached locally, or the two sides' HKDF salts diverge.
func (t *Tkm) DeriveSAKeys(randomI, solutionJ []byte, hitI, hitR protocol.HIT, keyLen int) error {
	secret := t.ka.SharedSecretBytes()
	keyI2R, keyR2I, err := crypto.DeriveSAKeys(secret, randomI, solutionJ, hitI[:], hitR[:], keyLen)
	if err != nil {
		return err
	}
	t.keyI2R, t.keyR2I = keyI2R, keyR2I
	return nil
}

// OutboundKey returns this session's own direction's HMAC key given whether
// it is I2R or R2I traffic, i.e. the outbound key for the initiator is
// I2R and for the responder is R2I.
func (t *Tkm) OutboundKey() []byte {
	if t.isInitiator {
		return t.keyI2R
	}
	return t.keyR2I
}

func (t *Tkm) InboundKey() []byte {
	if t.isInitiator {
		return t.keyR2I
	}
	return t.keyI2R
}
