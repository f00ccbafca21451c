package crypto

import (
	"crypto/aes"
	"testing"

	"github.com/dgryski/go-camellia"
	"github.com/stretchr/testify/require"
)

func TestSelectEspCipherKnownTransforms(t *testing.T) {
	c, ok := SelectEspCipher(EspCipherAES128, 128)
	require.True(t, ok)
	require.Equal(t, aes.BlockSize, c.BlockSize)
	require.Equal(t, 16, c.KeyLen)

	c, ok = SelectEspCipher(EspCipherCamellia, 128)
	require.True(t, ok)
	require.Equal(t, camellia.BlockSize, c.BlockSize)
}

func TestSelectEspCipherUnknownRejected(t *testing.T) {
	_, ok := SelectEspCipher(EspCipherId(999), 128)
	require.False(t, ok)
}
