package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRSASignerSignVerify(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer := NewRSASigner(priv)
	require.Equal(t, ProfileRSA, signer.Profile())

	msg := []byte("I1 packet bytes")
	sig, err := signer.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, signer.Verify(msg, sig))
	require.Error(t, signer.Verify([]byte("tampered"), sig))

	verifyOnly, err := SignerFromPublicKey(ProfileRSA, signer.PublicKeyBytes())
	require.NoError(t, err)
	require.NoError(t, verifyOnly.Verify(msg, sig))
	_, err = verifyOnly.Sign(msg)
	require.Error(t, err)
}

func TestECDSASignerSignVerify(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer := NewECDSASigner(priv)
	require.Equal(t, ProfileECDSA, signer.Profile())

	msg := []byte("I2 packet bytes")
	sig, err := signer.Sign(msg)
	require.NoError(t, err)
	require.NoError(t, signer.Verify(msg, sig))
	require.Error(t, signer.Verify([]byte("tampered"), sig))

	verifyOnly, err := SignerFromPublicKey(ProfileECDSA, signer.PublicKeyBytes())
	require.NoError(t, err)
	require.NoError(t, verifyOnly.Verify(msg, sig))
	_, err = verifyOnly.Sign(msg)
	require.Error(t, err)
}

func TestSignerFromPublicKeyRejectsUnknownProfile(t *testing.T) {
	_, err := SignerFromPublicKey(HIProfile(99), []byte("anything"))
	require.Error(t, err)
}
