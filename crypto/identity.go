package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"math/big"

	"github.com/pkg/errors"
)

// HIProfile names the asymmetric algorithm a Host Identity keypair uses,
// per spec §3 ("RSA or ECDSA profile").
type HIProfile int

const (
	ProfileRSA HIProfile = iota
	ProfileECDSA
)

// Signer signs and verifies HIP control packets on behalf of a Host
// Identity. Both profiles satisfy it so the rest of the system never
// branches on key type once a Signer is constructed.
type Signer interface {
	Profile() HIProfile
	PublicKeyBytes() []byte
	Sign(msg []byte) ([]byte, error)
	Verify(msg, sig []byte) error
}

type rsaSigner struct {
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
}

// NewRSASigner builds a Signer from an RSA keypair, PKCS#1v1.5 signing
// SHA-256 digests exactly as the HI profile requires.
func NewRSASigner(priv *rsa.PrivateKey) Signer {
	return &rsaSigner{priv: priv, pub: &priv.PublicKey}
}

func (s *rsaSigner) Profile() HIProfile { return ProfileRSA }

func (s *rsaSigner) PublicKeyBytes() []byte {
	return append(s.pub.N.Bytes(), exponentBytes(s.pub.E)...)
}

// exponentBytes encodes the public exponent as 4 big-endian bytes.
func exponentBytes(e int) []byte { return []byte{byte(e >> 24), byte(e >> 16), byte(e >> 8), byte(e)} }

func (s *rsaSigner) Sign(msg []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, errors.New("rsa signer has no private key (verify-only)")
	}
	digest := sha256.Sum256(msg)
	return rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, digest[:])
}

func (s *rsaSigner) Verify(msg, sig []byte) error {
	digest := sha256.Sum256(msg)
	if err := rsa.VerifyPKCS1v15(s.pub, crypto.SHA256, digest[:], sig); err != nil {
		return errors.Wrap(err, "rsa signature verify")
	}
	return nil
}

type ecdsaSigner struct {
	priv *ecdsa.PrivateKey
	pub  *ecdsa.PublicKey
}

// NewECDSASigner builds a Signer from a P-256 ECDSA keypair.
func NewECDSASigner(priv *ecdsa.PrivateKey) Signer {
	return &ecdsaSigner{priv: priv, pub: &priv.PublicKey}
}

func (s *ecdsaSigner) Profile() HIProfile { return ProfileECDSA }

func (s *ecdsaSigner) PublicKeyBytes() []byte {
	return elliptic.Marshal(s.pub.Curve, s.pub.X, s.pub.Y)
}

func (s *ecdsaSigner) Sign(msg []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, errors.New("ecdsa signer has no private key (verify-only)")
	}
	digest := sha256.Sum256(msg)
	return ecdsa.SignASN1(rand.Reader, s.priv, digest[:])
}

func (s *ecdsaSigner) Verify(msg, sig []byte) error {
	digest := sha256.Sum256(msg)
	if !ecdsa.VerifyASN1(s.pub, digest[:], sig) {
		return errors.New("ecdsa signature verify failed")
	}
	return nil
}

// SignerFromPublicKey reconstructs a verify-only Signer from a HOST_ID
// parameter's raw public key bytes, in the same encoding PublicKeyBytes
// produces. Sign returns an error: a peer's Host Identity is never used
// to sign on this router's behalf.
func SignerFromPublicKey(profile HIProfile, pubBytes []byte) (Signer, error) {
	switch profile {
	case ProfileRSA:
		if len(pubBytes) < 5 {
			return nil, errors.New("rsa host id too short")
		}
		eb := pubBytes[len(pubBytes)-4:]
		e := int(eb[0])<<24 | int(eb[1])<<16 | int(eb[2])<<8 | int(eb[3])
		n := new(big.Int).SetBytes(pubBytes[:len(pubBytes)-4])
		return &rsaSigner{pub: &rsa.PublicKey{N: n, E: e}}, nil
	case ProfileECDSA:
		curve := elliptic.P256()
		x, y := elliptic.Unmarshal(curve, pubBytes)
		if x == nil {
			return nil, errors.New("invalid ecdsa host id encoding")
		}
		return &ecdsaSigner{pub: &ecdsa.PublicKey{Curve: curve, X: x, Y: y}}, nil
	default:
		return nil, errors.Errorf("unknown HI profile %v", profile)
	}
}
