package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPuzzleSolveVerify(t *testing.T) {
	I := []byte("responder-nonce")
	hitI := []byte("initiator-hit-16")
	hitR := []byte("responder-hit-16")
	const K = 8

	J, err := PuzzleSolve(I, K, hitI, hitR)
	require.NoError(t, err)
	require.True(t, PuzzleVerify(I, J, K, hitI, hitR))
}

func TestPuzzleVerifyRejectsTamperedSolution(t *testing.T) {
	I := []byte("responder-nonce")
	hitI := []byte("initiator-hit-16")
	hitR := []byte("responder-hit-16")
	const K = 8

	J, err := PuzzleSolve(I, K, hitI, hitR)
	require.NoError(t, err)

	tampered := append([]byte{}, J...)
	tampered[0] ^= 0xff
	require.False(t, PuzzleVerify(I, tampered, K, hitI, hitR))
}

func TestDHGroupsAgree(t *testing.T) {
	for _, id := range []GroupId{GroupModp2048, GroupCurve25519} {
		initiator, err := NewKeyAgreement(id)
		require.NoError(t, err)
		responder, err := NewKeyAgreement(id)
		require.NoError(t, err)

		sharedI, err := initiator.Shared(responder.PublicKey)
		require.NoError(t, err)
		sharedR, err := responder.Shared(initiator.PublicKey)
		require.NoError(t, err)
		require.Equal(t, 0, sharedI.Cmp(sharedR))
	}
}

func TestDeriveSAKeysDistinctPerDirection(t *testing.T) {
	secret := []byte("shared-secret-material")
	nonceI := []byte("ni")
	nonceR := []byte("nr")
	hitI := []byte("hit-initiator")
	hitR := []byte("hit-responder")

	keyI2R, keyR2I, err := DeriveSAKeys(secret, nonceI, nonceR, hitI, hitR, 32)
	require.NoError(t, err)
	require.Len(t, keyI2R, 32)
	require.Len(t, keyR2I, 32)
	require.NotEqual(t, keyI2R, keyR2I)

	keyI2R2, keyR2I2, err := DeriveSAKeys(secret, nonceI, nonceR, hitI, hitR, 32)
	require.NoError(t, err)
	require.Equal(t, keyI2R, keyI2R2)
	require.Equal(t, keyR2I, keyR2I2)
}
