package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		NextHeader: 0,
		PacketType: I1,
		Controls:   0,
	}
	h.SenderHIT[0] = 0xaa
	h.ReceiverHIT[0] = 0xbb

	decoded, err := DecodeHeader(h.Encode())
	require.NoError(t, err)
	require.Equal(t, I1, decoded.PacketType)
	require.Equal(t, h.SenderHIT, decoded.SenderHIT)
	require.Equal(t, h.ReceiverHIT, decoded.ReceiverHIT)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderLen-1))
	require.Error(t, err)
	require.True(t, err.(Error).Is(MalformedPacket))
}

func TestMessageRoundTripWithParameters(t *testing.T) {
	msg := &Message{
		Header:     &Header{PacketType: I2},
		Parameters: &Parameters{},
	}
	msg.Parameters.Add(&DiffieHellmanParam{GroupID: 31, PublicValue: []byte("thirty-two-byte-public-value!!!")})
	msg.Parameters.Add(&SolutionParam{K: 8, RandomI: make([]byte, 8), SolutionJ: make([]byte, 8)})
	msg.Parameters.Add(&HMACParam{Value: make([]byte, 16)})

	encoded := msg.Encode()
	require.Equal(t, 0, len(encoded)%8)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, I2, decoded.Header.PacketType)

	dh, ok := decoded.Parameters.Get(ParamDiffieHellman).(*DiffieHellmanParam)
	require.True(t, ok)
	require.EqualValues(t, 31, dh.GroupID)

	sol, ok := decoded.Parameters.Get(ParamSolution).(*SolutionParam)
	require.True(t, ok)
	require.Len(t, sol.SolutionJ, 8)
}

func TestAHHeaderRoundTrip(t *testing.T) {
	h := &AHHeader{
		NextHeader:  ProtocolNumberHIP,
		PayloadLen:  AHPayloadLenWords(16),
		SPI:         0xdeadbeef,
		SequenceNum: 42,
		ICV:         make([]byte, 16),
	}
	decoded, n, err := DecodeAHHeader(h.Encode(), 16)
	require.NoError(t, err)
	require.Equal(t, len(h.Encode()), n)
	require.Equal(t, h.SPI, decoded.SPI)
	require.Equal(t, h.SequenceNum, decoded.SequenceNum)
}

func TestDecodeAHHeaderRejectsNonZeroReserved(t *testing.T) {
	h := &AHHeader{SPI: 1, ICV: make([]byte, 16)}
	b := h.Encode()
	b[2] = 1
	_, _, err := DecodeAHHeader(b, 16)
	require.Error(t, err)
}
