package hip

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/identity"
	"github.com/hipvpls/core/protocol"
	"github.com/hipvpls/core/sadb"
	"github.com/hipvpls/core/state"
)

// newTieBreakSession builds a Session already sitting in I1-SENT for a
// fixed (localHIT, peerHIT) pair, deterministic enough to exercise the
// spec §4.5 simultaneous-BEX tie-break without depending on which of two
// randomly generated HITs happens to be larger.
func newTieBreakSession(t *testing.T, localHIT, peerHIT protocol.HIT, sendR1 SendR1Func) *Session {
	t.Helper()
	peers, err := identity.LoadPeerTable([]byte("peers: []\n"))
	require.NoError(t, err)
	db := sadb.New()
	timers := state.NewTimers(func(protocol.HIT, state.RetransmitKind, int) {})

	send := func(net.IP, []byte) error { return nil }
	s := NewSession(context.Background(), DefaultConfig(), nil, peers, db, timers, db.Counters(),
		localHIT, peerHIT, net.ParseIP("10.0.0.9"), send, sendR1, nil)

	s.Trigger()
	evt := <-s.Events()
	s.HandleEvent(evt)
	require.Equal(t, StateI1Sent, s.State)
	return s
}

func TestSimultaneousI1TieBreakLargerLocalHITWins(t *testing.T) {
	var localHIT, peerHIT protocol.HIT
	localHIT[0] = 0xFF
	peerHIT[0] = 0x01

	called := false
	sendR1 := func(protocol.HIT, net.IP) (*Tkm, error) {
		called = true
		return nil, nil
	}
	s := newTieBreakSession(t, localHIT, peerHIT, sendR1)

	s.HandleEvent(state.StateEvent{Event: EventI1Rcvd, Data: BuildI1(peerHIT, localHIT)})

	require.Equal(t, StateI1Sent, s.State, "the larger HIT keeps initiating instead of yielding")
	require.False(t, called, "the winning side must not answer with R1")
	select {
	case err := <-s.Errors():
		require.Error(t, err)
	default:
		t.Fatal("expected the aborted transition to report an error")
	}
}

func TestSimultaneousI1TieBreakSmallerLocalHITYields(t *testing.T) {
	var localHIT, peerHIT protocol.HIT
	localHIT[0] = 0x01
	peerHIT[0] = 0xFF

	ka, err := crypto.NewKeyAgreement(DefaultConfig().DHGroups[0])
	require.NoError(t, err)
	called := false
	sendR1 := func(gotPeerHIT protocol.HIT, gotLocator net.IP) (*Tkm, error) {
		called = true
		require.Equal(t, peerHIT, gotPeerHIT)
		return NewTkmResponderFromKeyAgreement(ka, DefaultConfig().DHGroups[0], 0), nil
	}
	s := newTieBreakSession(t, localHIT, peerHIT, sendR1)

	s.HandleEvent(state.StateEvent{Event: EventI1Rcvd, Data: BuildI1(peerHIT, localHIT)})

	require.Equal(t, StateUnassociated, s.State, "the smaller HIT yields and resets to answer as responder")
	require.True(t, called, "the yielding side must answer the peer's I1 with R1")
	require.NotNil(t, s.tkm)
}
