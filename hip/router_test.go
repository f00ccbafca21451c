package hip

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hipvpls/core/ah"
	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/identity"
	"github.com/hipvpls/core/protocol"
	"github.com/hipvpls/core/sadb"
)

const routerTestPeerTable = `
peers:
  - hit: "2001:1c::5:6:7:8"
    locator_ip: "10.0.0.3"
    macs: ["aa:bb:cc:dd:ee:02"]
`

func routerTestPeerHIT(t *testing.T) protocol.HIT {
	t.Helper()
	ip := net.ParseIP("2001:1c::5:6:7:8")
	require.NotNil(t, ip)
	var hit protocol.HIT
	copy(hit[:], ip.To16())
	return hit
}

type fakeConn struct {
	writes [][]byte
	addrs  []net.Addr
}

func (f *fakeConn) ReadPacket() ([]byte, net.Addr, net.IP, error) { return nil, nil, nil, io.EOF }
func (f *fakeConn) WritePacket(b []byte, addr net.Addr) error {
	f.writes = append(f.writes, append([]byte{}, b...))
	f.addrs = append(f.addrs, addr)
	return nil
}
func (f *fakeConn) LocalAddr() net.Addr { return nil }
func (f *fakeConn) Close() error        { return nil }

type fakeBridge struct {
	frames [][]byte
}

func (f *fakeBridge) ReadFrame() ([]byte, error) { return nil, io.EOF }
func (f *fakeBridge) WriteFrame(b []byte) error {
	f.frames = append(f.frames, append([]byte{}, b...))
	return nil
}
func (f *fakeBridge) Close() error { return nil }

func newTestRouter(t *testing.T) (*Router, *fakeConn, *fakeConn, *fakeBridge) {
	t.Helper()
	local, err := identity.GenerateLocalIdentity(crypto.ProfileECDSA)
	require.NoError(t, err)
	peers, err := identity.LoadPeerTable([]byte(routerTestPeerTable))
	require.NoError(t, err)

	hipConn, ahConn, bridge := &fakeConn{}, &fakeConn{}, &fakeBridge{}
	r := NewRouter(context.Background(), DefaultConfig(), local, peers, hipConn, ahConn, bridge)
	return r, hipConn, ahConn, bridge
}

func ethernetFrame(dst net.HardwareAddr, payload string) []byte {
	frame := make([]byte, 14+len(payload))
	copy(frame[0:6], dst)
	copy(frame[6:12], []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x09})
	frame[12], frame[13] = 0x08, 0x00
	copy(frame[14:], payload)
	return frame
}

func TestHandleBridgeFrameEnqueuesAndTriggersBEXWhenNoOutboundSA(t *testing.T) {
	r, hipConn, _, _ := newTestRouter(t)
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:02")
	require.NoError(t, err)

	r.handleBridgeFrame(ethernetFrame(mac, "hello"))
	// Trigger only posts TRIGGER; apply it the way Run's select loop does.
	fe := <-r.fsmEvents
	fe.session.HandleEvent(fe.evt)

	peerHIT := routerTestPeerHIT(t)
	ps, ok := r.peerByHIT[peerHIT]
	require.True(t, ok)
	require.Equal(t, 1, ps.queue.Len())
	require.Equal(t, StateI1Sent, ps.session.State)
	require.Len(t, hipConn.writes, 1)
}

func TestHandleBridgeFrameDropsUnknownDestination(t *testing.T) {
	r, hipConn, ahConn, _ := newTestRouter(t)
	mac, err := net.ParseMAC("ff:ff:ff:ff:ff:ff")
	require.NoError(t, err)

	r.handleBridgeFrame(ethernetFrame(mac, "hello"))

	require.Empty(t, r.peerByHIT)
	require.Empty(t, hipConn.writes)
	require.Empty(t, ahConn.writes)
}

func TestHandleBridgeFrameEncapsulatesWhenOutboundSAExists(t *testing.T) {
	r, _, ahConn, _ := newTestRouter(t)
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:02")
	require.NoError(t, err)
	peerHIT := routerTestPeerHIT(t)

	ps := r.peerFor(peerHIT)
	ps.locator = net.ParseIP("10.0.0.3")
	in := sadb.NewInboundSA(1, peerHIT, r.localHIT, crypto.HMAC_SHA256_128, []byte("a shared HMAC key"))
	out := sadb.NewOutboundSA(2, peerHIT, r.localHIT, crypto.HMAC_SHA256_128, []byte("a shared HMAC key"))
	require.NoError(t, r.db.InsertPair(in, out))

	r.handleBridgeFrame(ethernetFrame(mac, "hello"))

	require.Equal(t, 0, ps.queue.Len())
	require.Len(t, ahConn.writes, 1)
}

func TestOnSessionEstablishedDrainsQueuedFrames(t *testing.T) {
	r, _, ahConn, _ := newTestRouter(t)
	peerHIT := routerTestPeerHIT(t)

	ps := r.peerFor(peerHIT)
	ps.locator = net.ParseIP("10.0.0.3")
	ps.queue.Push(ethernetFrame(net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x02}, "queued-1"))
	ps.queue.Push(ethernetFrame(net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x02}, "queued-2"))

	in := sadb.NewInboundSA(1, peerHIT, r.localHIT, crypto.HMAC_SHA256_128, []byte("a shared HMAC key"))
	out := sadb.NewOutboundSA(2, peerHIT, r.localHIT, crypto.HMAC_SHA256_128, []byte("a shared HMAC key"))
	require.NoError(t, r.db.InsertPair(in, out))

	r.onSessionEstablished(ps.session)

	require.Equal(t, 0, ps.queue.Len())
	require.Len(t, ahConn.writes, 2)
}

// TestHandleI1FromUnknownPeerDoesNotAllocateSession is the testable
// property of spec §8: answering a stranger's I1 must not grow the
// router's per-peer state, however many distinct HITs send one.
func TestHandleI1FromUnknownPeerDoesNotAllocateSession(t *testing.T) {
	r, hipConn, _, _ := newTestRouter(t)

	var strangerHIT protocol.HIT
	strangerHIT[0] = 0x77

	i1 := BuildI1(strangerHIT, r.localHIT)
	r.handleHIPDatagram(datagramIn{payload: i1.Encode(), remote: net.ParseIP("10.0.0.9")})

	require.Empty(t, r.peerByHIT)
	require.Len(t, hipConn.writes, 1)

	r1Wire, err := protocol.DecodeMessage(hipConn.writes[0])
	require.NoError(t, err)
	require.Equal(t, protocol.R1, r1Wire.Header.PacketType)
	require.Equal(t, strangerHIT, r1Wire.Header.ReceiverHIT)
}

// TestHandleI2FromUnknownPeerWithBadSolutionDropsWithoutAllocating checks
// the other half: an I2 claiming a solution the router's keyed secret
// never issued is dropped before any peerState/Session is built.
func TestHandleI2FromUnknownPeerWithBadSolutionDropsWithoutAllocating(t *testing.T) {
	r, _, _, _ := newTestRouter(t)

	var strangerHIT protocol.HIT
	strangerHIT[0] = 0x88

	i2 := &protocol.Message{
		Header: &protocol.Header{
			PacketType:  protocol.I2,
			SenderHIT:   strangerHIT,
			ReceiverHIT: r.localHIT,
		},
		Parameters: &protocol.Parameters{},
	}
	i2.Parameters.Add(&protocol.SolutionParam{K: 1, RandomI: []byte{1, 2, 3, 4, 5, 6, 7, 8}, SolutionJ: []byte{0, 0, 0, 0, 0, 0, 0, 0}})

	r.handleHIPDatagram(datagramIn{payload: i2.Encode(), remote: net.ParseIP("10.0.0.9")})

	require.Empty(t, r.peerByHIT)
}

func TestHandleAHDatagramForwardsDecapsulatedFrameToBridge(t *testing.T) {
	r, _, _, bridge := newTestRouter(t)
	peerHIT := routerTestPeerHIT(t)

	in := sadb.NewInboundSA(5, peerHIT, r.localHIT, crypto.HMAC_SHA256_128, []byte("a shared HMAC key"))
	out := sadb.NewOutboundSA(5, peerHIT, r.localHIT, crypto.HMAC_SHA256_128, []byte("a shared HMAC key"))
	require.NoError(t, r.db.InsertPair(in, out))

	frame := ethernetFrame(net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x02}, "hello")
	datagram, err := ah.Encapsulate(r.db, out, frame)
	require.NoError(t, err)

	r.handleAHDatagram(datagramIn{payload: datagram, remote: net.ParseIP("10.0.0.3")})

	require.Len(t, bridge.frames, 1)
	require.Equal(t, frame, bridge.frames[0])
}
