package crypto

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// GroupId names a negotiable DIFFIE_HELLMAN group, reusing IKEv2's group
// numbering since the wire encoding (two-byte group id) is identical.
type GroupId uint16

const (
	GroupNone       GroupId = 0
	GroupModp2048   GroupId = 14
	GroupCurve25519 GroupId = 31
)

// byteReader is the minimal random source the group implementations need;
// satisfied by crypto/rand.Reader and by deterministic readers in tests.
type byteReader interface {
	Read([]byte) (int, error)
}

// dhGroup is implemented once per supported DIFFIE_HELLMAN group. Public
// values for the MODP groups are encoded as big-endian, left-padded to
// the group's prime length; Curve25519 public values are its native
// 32-byte encoding wrapped in a big.Int for a uniform caller-facing type.
type dhGroup interface {
	id() GroupId
	private(byteReader) (*big.Int, error)
	public(priv *big.Int) *big.Int
	diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error)
	size() int
}

func GroupByID(id GroupId) (dhGroup, error) {
	switch id {
	case GroupModp2048:
		return modpGroup{prime: modp2048}, nil
	case GroupCurve25519:
		return curve25519Group{}, nil
	default:
		return nil, errors.Errorf("unsupported dh group %d", id)
	}
}

// KeyAgreement holds one side's ephemeral DH state for a BEX.
type KeyAgreement struct {
	Group      dhGroup
	PrivateKey *big.Int
	PublicKey  *big.Int
	shared     *big.Int
}

// NewKeyAgreement generates a fresh ephemeral keypair in the named group.
func NewKeyAgreement(id GroupId) (*KeyAgreement, error) {
	g, err := GroupByID(id)
	if err != nil {
		return nil, err
	}
	priv, err := g.private(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "dh keypair")
	}
	return &KeyAgreement{
		Group:      g,
		PrivateKey: priv,
		PublicKey:  g.public(priv),
	}, nil
}

// Shared computes the DH shared secret given the peer's public value.
func (k *KeyAgreement) Shared(theirPublic *big.Int) (*big.Int, error) {
	shared, err := k.Group.diffieHellman(theirPublic, k.PrivateKey)
	if err != nil {
		return nil, err
	}
	k.shared = shared
	return shared, nil
}

// PublicKeyBytes encodes PublicKey at the group's fixed wire width, the
// form a DIFFIE_HELLMAN parameter carries.
func (k *KeyAgreement) PublicKeyBytes() []byte {
	return leftPad(k.PublicKey.Bytes(), k.Group.size())
}

// SharedFromBytes runs Shared against a peer's wire-encoded public value.
func (k *KeyAgreement) SharedFromBytes(theirPublic []byte) (*big.Int, error) {
	return k.Shared(new(big.Int).SetBytes(theirPublic))
}

// SharedSecretBytes returns the cached shared secret from the most
// recent Shared/SharedFromBytes call, at the group's fixed wire width.
func (k *KeyAgreement) SharedSecretBytes() []byte {
	if k.shared == nil {
		return nil
	}
	return leftPad(k.shared.Bytes(), k.Group.size())
}

// modpGroup implements classic MODP Diffie-Hellman over math/big, exactly
// as the teacher's tkm.go drives DhPrivate/DhPublic/DhShared.
type modpGroup struct {
	prime *big.Int
}

var generator = big.NewInt(2)

func (g modpGroup) id() GroupId { return GroupModp2048 }

func (g modpGroup) size() int { return (g.prime.BitLen() + 7) / 8 }

func (g modpGroup) private(r byteReader) (*big.Int, error) {
	// private exponent: a random value in [2, p-2].
	max := new(big.Int).Sub(g.prime, big.NewInt(3))
	n, err := rand.Int(r, max)
	if err != nil {
		return nil, err
	}
	return n.Add(n, big.NewInt(2)), nil
}

func (g modpGroup) public(priv *big.Int) *big.Int {
	return new(big.Int).Exp(generator, priv, g.prime)
}

func (g modpGroup) diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error) {
	if theirPublic.Cmp(big.NewInt(1)) <= 0 || theirPublic.Cmp(g.prime) >= 0 {
		return nil, errors.New("invalid dh public value")
	}
	return new(big.Int).Exp(theirPublic, myPrivate, g.prime), nil
}

// curve25519Group implements ECDH over Curve25519, the profile grounded
// on cvsouth-tor-go's ntor handshake.
type curve25519Group struct{}

func (curve25519Group) id() GroupId { return GroupCurve25519 }
func (curve25519Group) size() int   { return curve25519.PointSize }

func (curve25519Group) private(r byteReader) (*big.Int, error) {
	var scalar [curve25519.ScalarSize]byte
	if _, err := r.Read(scalar[:]); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(scalar[:]), nil
}

func (curve25519Group) public(priv *big.Int) *big.Int {
	scalar := leftPad(priv.Bytes(), curve25519.ScalarSize)
	pub, err := curve25519.X25519(scalar, curve25519.Basepoint)
	if err != nil {
		// curve25519.X25519 only fails on malformed input lengths, which
		// leftPad above rules out.
		panic(err)
	}
	return new(big.Int).SetBytes(pub)
}

func (curve25519Group) diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error) {
	scalar := leftPad(myPrivate.Bytes(), curve25519.ScalarSize)
	peer := leftPad(theirPublic.Bytes(), curve25519.PointSize)
	shared, err := curve25519.X25519(scalar, peer)
	if err != nil {
		return nil, errors.Wrap(err, "curve25519 dh")
	}
	return new(big.Int).SetBytes(shared), nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
