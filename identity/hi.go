// Package identity owns the local Host Identity keypair and the static
// peer table that maps a Host Identity Tag to how to reach and
// authenticate that peer.
package identity

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"

	"github.com/pkg/errors"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/protocol"
)

// LocalIdentity is this router's own Host Identity: a signer plus the HIT
// derived from its public key, per spec §3.
type LocalIdentity struct {
	Signer crypto.Signer
	HIT    protocol.HIT
}

// LoadLocalIdentity reads a PEM-encoded private key (PKCS#1 RSA or SEC1
// EC) from a key source and derives this router's HIT from it.
func LoadLocalIdentity(pemBytes []byte) (*LocalIdentity, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("identity: no PEM block found in key source")
	}

	var signer crypto.Signer
	var pubBytes []byte

	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "identity: parse RSA private key")
		}
		signer = crypto.NewRSASigner(priv)
		pubBytes = signer.PublicKeyBytes()
	case "EC PRIVATE KEY":
		priv, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "identity: parse EC private key")
		}
		signer = crypto.NewECDSASigner(priv)
		pubBytes = signer.PublicKeyBytes()
	default:
		return nil, errors.Errorf("identity: unsupported key type %q", block.Type)
	}

	return &LocalIdentity{Signer: signer, HIT: DeriveHIT(pubBytes)}, nil
}

// GenerateLocalIdentity creates a fresh keypair of the given profile, for
// first-run bootstrap or tests. Mirrors spec §3's "Local identity
// keypair(s)" without requiring an operator to provision one first.
func GenerateLocalIdentity(profile crypto.HIProfile) (*LocalIdentity, error) {
	switch profile {
	case crypto.ProfileRSA:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, errors.Wrap(err, "identity: generate RSA key")
		}
		signer := crypto.NewRSASigner(priv)
		return &LocalIdentity{Signer: signer, HIT: DeriveHIT(signer.PublicKeyBytes())}, nil
	case crypto.ProfileECDSA:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "identity: generate ECDSA key")
		}
		signer := crypto.NewECDSASigner(priv)
		return &LocalIdentity{Signer: signer, HIT: DeriveHIT(signer.PublicKeyBytes())}, nil
	default:
		return nil, errors.Errorf("identity: unknown HI profile %v", profile)
	}
}

// DeriveHIT computes the ORCHID-style HIT of spec §3: the SHA-256 digest
// of the encoded public key, truncated to the low 128 bits.
func DeriveHIT(publicKeyBytes []byte) protocol.HIT {
	digest := sha256.Sum256(publicKeyBytes)
	var hit protocol.HIT
	copy(hit[:], digest[len(digest)-protocol.HITLen:])
	return hit
}
