package hip

import (
	"net"

	"github.com/hipvpls/core/protocol"
)

// peerState is C7's per-peer bookkeeping of spec §4.7: `{ peer_hit,
// peer_locator, queue<frame>, last_seen_locator }`, plus the BEX Session
// that owns this peer's SA pair once one exists.
type peerState struct {
	hit             protocol.HIT
	locator         net.IP
	lastSeenLocator net.IP
	queue           *FrameQueue
	session         *Session
}

func newPeerState(hit protocol.HIT, locator net.IP, queueLen int) *peerState {
	return &peerState{
		hit:     hit,
		locator: locator,
		queue:   NewFrameQueue(queueLen),
	}
}
