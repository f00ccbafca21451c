package ah

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/protocol"
	"github.com/hipvpls/core/sadb"
)

func testHIT(b byte) protocol.HIT {
	var h protocol.HIT
	h[0] = b
	return h
}

// newTestPair builds an (in, out) SA pair sharing one SPI, standing in
// for the single-SADB case where a datagram this SA pair's router
// encapsulates is immediately fed back into decapsulation against its
// own inbound leg — a real deployment has two routers, each with its own
// SADB, but a shared SPI across the wire is exactly what lets the
// receiver's lookup_in(spi) find the matching SA.
func newTestPair(t *testing.T) (*sadb.SADB, *sadb.SA, *sadb.SA) {
	t.Helper()
	db := sadb.New()
	local, peer := testHIT(1), testHIT(2)
	key := []byte("a shared HMAC key of some length")
	const spi = 100
	out := sadb.NewOutboundSA(spi, peer, local, crypto.HMAC_SHA256_128, key)
	in := sadb.NewInboundSA(spi, peer, local, crypto.HMAC_SHA256_128, key)
	require.NoError(t, db.InsertPair(in, out))
	return db, in, out
}

func TestEncapsulateThenDecapsulateRoundTrips(t *testing.T) {
	db, _, out := newTestPair(t)
	frame := []byte("a pretend ethernet frame payload")

	datagram, err := Encapsulate(db, out, frame)
	require.NoError(t, err)

	got, err := Decapsulate(db, datagram)
	require.NoError(t, err)
	require.Equal(t, frame, got)
}

func TestDecapsulateRejectsTamperedICV(t *testing.T) {
	db, _, out := newTestPair(t)
	frame := []byte("frame")

	datagram, err := Encapsulate(db, out, frame)
	require.NoError(t, err)
	datagram[12] ^= 0xFF // flip the first ICV byte, which starts right after the 12-byte fixed AH portion

	_, err = Decapsulate(db, datagram)
	require.Error(t, err)
	hipErr, ok := err.(protocol.Error)
	require.True(t, ok)
	require.True(t, hipErr.Is(protocol.AuthFailure))
}

func TestDecapsulateRejectsTamperedPayload(t *testing.T) {
	db, _, out := newTestPair(t)
	frame := []byte("frame payload")

	datagram, err := Encapsulate(db, out, frame)
	require.NoError(t, err)
	datagram[len(datagram)-1] ^= 0xFF // flip a payload byte

	_, err = Decapsulate(db, datagram)
	require.Error(t, err)
}

func TestDecapsulateRejectsUnknownSPI(t *testing.T) {
	db, _, out := newTestPair(t)
	frame := []byte("frame")
	datagram, err := Encapsulate(db, out, frame)
	require.NoError(t, err)

	empty := sadb.New()
	_, err = Decapsulate(empty, datagram)
	require.Error(t, err)
	hipErr, ok := err.(protocol.Error)
	require.True(t, ok)
	require.True(t, hipErr.Is(protocol.UnknownSPI))
}

func TestDecapsulateRejectsReplayedSequence(t *testing.T) {
	db, _, out := newTestPair(t)
	frame := []byte("frame")

	datagram, err := Encapsulate(db, out, frame)
	require.NoError(t, err)

	_, err = Decapsulate(db, datagram)
	require.NoError(t, err)

	_, err = Decapsulate(db, datagram)
	require.Error(t, err)
	hipErr, ok := err.(protocol.Error)
	require.True(t, ok)
	require.True(t, hipErr.Is(protocol.ReplayDetected))
}

func TestDecapsulateDoesNotAdvanceReplayWindowOnAuthFailure(t *testing.T) {
	db, _, out := newTestPair(t)
	frame := []byte("frame")

	datagram, err := Encapsulate(db, out, frame)
	require.NoError(t, err)
	tampered := append([]byte{}, datagram...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = Decapsulate(db, tampered)
	require.Error(t, err)

	// The same sequence number, now with a correct ICV, must still be
	// accepted: the failed attempt must not have committed the replay
	// window (spec §4.6's "step 3 is tentative").
	_, err = Decapsulate(db, datagram)
	require.NoError(t, err)
}

func TestEncapsulateRefusesOnExhaustedSA(t *testing.T) {
	db, _, out := newTestPair(t)
	out.SeqOut = ^uint32(0)

	_, err := Encapsulate(db, out, []byte("frame"))
	require.NoError(t, err, "the boundary sequence number itself must still encapsulate")
	require.True(t, out.Exhausted())

	_, err = Encapsulate(db, out, []byte("frame"))
	require.Error(t, err)
	hipErr, ok := err.(protocol.Error)
	require.True(t, ok)
	require.True(t, hipErr.Is(protocol.SAExhausted))
}
