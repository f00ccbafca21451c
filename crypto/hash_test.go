package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHMACTruncatesToTransformICVLen(t *testing.T) {
	key := []byte("a shared HMAC key")
	msg := []byte("AH-protected frame")

	tag256 := HMAC(HMAC_SHA256_128, key, msg)
	require.Len(t, tag256, HMAC_SHA256_128.ICVLen())
	require.Equal(t, 16, len(tag256))

	tag1 := HMAC(HMAC_SHA1_96, key, msg)
	require.Len(t, tag1, HMAC_SHA1_96.ICVLen())
	require.Equal(t, 12, len(tag1))
}

func TestHMACDeterministicAndKeySensitive(t *testing.T) {
	msg := []byte("same message")
	tagA := HMAC(HMAC_SHA256_128, []byte("key-a"), msg)
	tagA2 := HMAC(HMAC_SHA256_128, []byte("key-a"), msg)
	tagB := HMAC(HMAC_SHA256_128, []byte("key-b"), msg)

	require.Equal(t, tagA, tagA2)
	require.NotEqual(t, tagA, tagB)
}

func TestHashDeterministic(t *testing.T) {
	require.Equal(t, Hash([]byte("x")), Hash([]byte("x")))
	require.NotEqual(t, Hash([]byte("x")), Hash([]byte("y")))
	require.Len(t, Hash([]byte("x")), 32)
}
