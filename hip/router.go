package hip

import (
	"context"
	"net"
	"sync"

	"github.com/msgboxio/log"

	"github.com/hipvpls/core/ah"
	"github.com/hipvpls/core/identity"
	"github.com/hipvpls/core/protocol"
	"github.com/hipvpls/core/sadb"
	"github.com/hipvpls/core/state"
)

// datagramIn is a backbone-side read: the raw IP payload plus the remote
// IP address it arrived from.
type datagramIn struct {
	payload []byte
	remote  net.IP
}

// fsmEvent pairs a Session with the event meant for its Fsm, the unit the
// per-session watcher goroutines forward into the worker's single event
// queue.
type fsmEvent struct {
	session *Session
	evt     state.StateEvent
}

// Router is the C7 protocol worker of spec §4.7/§5: the single goroutine
// that owns every peer's Session, the SADB, and the frame queues, fed by
// two backbone reader goroutines (HIP control, AH data), one bridge
// reader goroutine, and one watcher goroutine per active Session
// forwarding Fsm events and timer-driven retransmissions into its own
// queue. No lock guards the SADB or the peer map: only this goroutine
// ever touches them, per spec §5's single-protocol-worker model.
type Router struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg       *Config
	local     *identity.LocalIdentity
	localHIT  protocol.HIT
	peers     *identity.PeerTable
	db        *sadb.SADB
	timers    *state.Timers
	counters  *sadb.Counters

	hipConn Conn
	ahConn  Conn
	bridge  BridgeConn

	// puzzleSecret and respDH back the stateless R1 path of spec §4.5/§8:
	// neither a Session nor any other per-peer state is allocated to
	// answer an I1 from a peer we haven't already committed to.
	puzzleSecret puzzleSecret
	respDH       [2]epochKeyAgreement

	peerByHIT map[protocol.HIT]*peerState

	// sessionsByHIT mirrors peerByHIT's Session pointers for the one
	// reader outside the worker goroutine: the timer goroutine's
	// fireTimer. sync.Map is the right tool here precisely because it's a
	// single-writer/many-reader split, not general mutable shared state —
	// the worker is still the only one that ever deletes or overwrites an
	// entry.
	sessionsByHIT sync.Map // protocol.HIT -> *Session

	bridgeFrames chan []byte
	hipDatagrams chan datagramIn
	ahDatagrams  chan datagramIn
	fsmEvents    chan fsmEvent
}

// NewRouter wires a dispatcher around an already-loaded local identity,
// peer table, and a trio of conns: the HIP control socket (IP protocol
// 139), the AH data socket (IP protocol 51), and the local bridge.
func NewRouter(parent context.Context, cfg *Config, local *identity.LocalIdentity, peers *identity.PeerTable, hipConn, ahConn Conn, bridge BridgeConn) *Router {
	ctx, cancel := context.WithCancel(parent)
	r := &Router{
		ctx: ctx, cancel: cancel,
		cfg: cfg, local: local, localHIT: local.HIT, peers: peers,
		db:      sadb.New(),
		hipConn: hipConn, ahConn: ahConn, bridge: bridge,

		puzzleSecret: newPuzzleSecret(),

		peerByHIT: make(map[protocol.HIT]*peerState),

		bridgeFrames: make(chan []byte, 64),
		hipDatagrams: make(chan datagramIn, 64),
		ahDatagrams:  make(chan datagramIn, 256),
		fsmEvents:    make(chan fsmEvent, 64),
	}
	r.counters = r.db.Counters()
	r.timers = state.NewTimers(r.fireTimer)
	go r.timers.Run(ctx.Done())
	return r
}

func (r *Router) Counters() *sadb.Counters { return r.counters }

// Stop requests shutdown; Run then closes every Session, the backbone
// conns and the bridge, and returns. Frames, datagrams and FSM events
// still waiting in its channels are discarded, not processed.
func (r *Router) Stop() { r.cancel() }

// Run is the protocol worker's event loop. It blocks until Stop is
// called (or the parent context is cancelled).
func (r *Router) Run() {
	go r.readBridgeLoop()
	go r.readBackboneLoop(r.hipConn, r.hipDatagrams)
	go r.readBackboneLoop(r.ahConn, r.ahDatagrams)

	for {
		select {
		case frame := <-r.bridgeFrames:
			r.handleBridgeFrame(frame)
		case dg := <-r.hipDatagrams:
			r.handleHIPDatagram(dg)
		case dg := <-r.ahDatagrams:
			r.handleAHDatagram(dg)
		case fe := <-r.fsmEvents:
			fe.session.HandleEvent(fe.evt)
		case <-r.ctx.Done():
			r.shutdown()
			return
		}
	}
}

func (r *Router) shutdown() {
	for _, ps := range r.peerByHIT {
		ps.session.Close()
	}
	r.hipConn.Close()
	r.ahConn.Close()
	r.bridge.Close()
}

func (r *Router) readBridgeLoop() {
	for {
		frame, err := r.bridge.ReadFrame()
		if err != nil {
			log.Warningf("hip: bridge read: %v", err)
			return
		}
		select {
		case r.bridgeFrames <- frame:
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Router) readBackboneLoop(conn Conn, out chan<- datagramIn) {
	for {
		b, remoteAddr, _, err := conn.ReadPacket()
		if err != nil {
			log.Warningf("hip: backbone read: %v", err)
			return
		}
		select {
		case out <- datagramIn{payload: b, remote: remoteIP(remoteAddr)}:
		case <-r.ctx.Done():
			return
		}
	}
}

func remoteIP(addr net.Addr) net.IP {
	if ipAddr, ok := addr.(*net.IPAddr); ok {
		return ipAddr.IP
	}
	return nil
}

// handleBridgeFrame is C7's outbound path of spec §4.7: destination MAC
// to peer HIT via C3, outbound SA via C4. Present: encapsulate and send.
// Absent: enqueue and trigger BEX.
func (r *Router) handleBridgeFrame(frame []byte) {
	if len(frame) < 14 {
		return
	}
	dstMAC := net.HardwareAddr(append([]byte{}, frame[0:6]...))
	peerHIT, ok := r.peers.ResolveByMAC(dstMAC)
	if !ok {
		return
	}
	ps := r.peerFor(peerHIT)

	if out, ok := r.db.LookupOut(r.localHIT, peerHIT); ok {
		r.encapsulateAndSend(out, ps, frame)
		return
	}
	ps.queue.Push(frame)
	ps.session.Trigger()
}

// handleHIPDatagram is C7's inbound control path. I1 and I2 are special:
// per spec §4.5/§8, a responder must not allocate a Session/peerState
// for an unauthenticated I1, and an I2 from an unknown peer must have its
// puzzle solution verified statelessly before anything is allocated for
// it. Every other packet type only makes sense for a peer we already
// have a Session for.
func (r *Router) handleHIPDatagram(dg datagramIn) {
	msg, err := protocol.DecodeMessage(dg.payload)
	if err != nil {
		log.Infof("hip: malformed control datagram from %s: %v", dg.remote, err)
		return
	}
	switch msg.Header.PacketType {
	case protocol.I1:
		r.handleI1(msg, dg.remote)
		return
	case protocol.I2:
		r.handleI2(msg, dg.remote)
		return
	}
	ps, ok := r.peerByHIT[msg.Header.SenderHIT]
	if !ok {
		return
	}
	ps.lastSeenLocator = dg.remote
	ps.locator = dg.remote
	ps.session.peerLocator = dg.remote
	ps.session.Deliver(msg)
}

// handleI1 answers an I1. If a Session for this peer already exists (we
// are already initiating to them ourselves), this is the simultaneous-BEX
// case of spec §4.5 and the existing Fsm resolves the tie-break.
// Otherwise it answers statelessly via sendStatelessR1 without ever
// constructing a Session, per spec §4.5/§8.
func (r *Router) handleI1(msg *protocol.Message, remote net.IP) {
	if ps, ok := r.peerByHIT[msg.Header.SenderHIT]; ok {
		ps.lastSeenLocator = remote
		ps.locator = remote
		ps.session.peerLocator = remote
		ps.session.Deliver(msg)
		return
	}
	if _, err := r.sendStatelessR1(msg.Header.SenderHIT, remote); err != nil {
		log.Warningf("hip: stateless R1 to %s: %v", msg.Header.SenderHIT, err)
	}
}

// handleI2 answers an I2 from a peer with no Session yet: the puzzle
// solution is checked against the router's keyed secret before anything
// is allocated. Only a verified solution earns the peer a peerState,
// Session, and watcher goroutine. An I2 for a peer that already has a
// Session (we sent R1 ourselves, or already saw a first I2) is handed
// straight to its Fsm.
func (r *Router) handleI2(msg *protocol.Message, remote net.IP) {
	if ps, ok := r.peerByHIT[msg.Header.SenderHIT]; ok {
		ps.lastSeenLocator = remote
		ps.locator = remote
		ps.session.peerLocator = remote
		ps.session.Deliver(msg)
		return
	}

	sol, ok := msg.Parameters.Get(protocol.ParamSolution).(*protocol.SolutionParam)
	if !ok {
		log.Infof("hip: I2 from %s missing SOLUTION, dropping", msg.Header.SenderHIT)
		return
	}
	if !r.puzzleSecret.verify(msg.Header.SenderHIT, r.localHIT, r.cfg.PuzzleK, sol.Opaque, sol) {
		log.Infof("hip: I2 from %s failed stateless puzzle check, dropping", msg.Header.SenderHIT)
		return
	}
	ka, err := r.dhForEpoch(sol.Opaque)
	if err != nil {
		log.Warningf("hip: recovering DH keypair for epoch %d: %v", sol.Opaque, err)
		return
	}

	ps := r.peerFor(msg.Header.SenderHIT)
	ps.lastSeenLocator = remote
	ps.locator = remote
	ps.session.peerLocator = remote
	ps.session.tkm = NewTkmResponderFromKeyAgreement(ka, r.cfg.DHGroups[0], 0)
	ps.session.tkm.SeedPuzzleFromSolution(sol)
	ps.session.Deliver(msg)
}

// sendStatelessR1 answers an I1 without allocating any per-peer state:
// the PUZZLE's RandomI comes from the router's keyed secret and the DH
// public value from the epoch's cached keypair, per spec §4.5/§8. It
// returns a Tkm wrapping that same keypair so a caller that does need to
// keep going (actionResolveSimultaneousI1's yield branch) can adopt it.
func (r *Router) sendStatelessR1(peerHIT protocol.HIT, locator net.IP) (*Tkm, error) {
	epoch := currentEpoch()
	ka, err := r.dhForEpoch(epoch)
	if err != nil {
		return nil, err
	}
	randomI := r.puzzleSecret.randomI(peerHIT, r.localHIT, epoch)
	r1, err := BuildR1(r.cfg, r.local, r.localHIT, peerHIT, r.cfg.DHGroups[0], ka.PublicKeyBytes(), randomI, epoch, uint64(epoch))
	if err != nil {
		return nil, err
	}
	if err := r.hipConn.WritePacket(r1.Encode(), &net.IPAddr{IP: locator}); err != nil {
		return nil, err
	}
	return NewTkmResponderFromKeyAgreement(ka, r.cfg.DHGroups[0], 0), nil
}

// handleAHDatagram is C7's inbound data path: hand the datagram to C6; on
// success, forward the inner frame to the bridge side.
func (r *Router) handleAHDatagram(dg datagramIn) {
	frame, err := ah.Decapsulate(r.db, dg.payload)
	if err != nil {
		return
	}
	if err := r.bridge.WriteFrame(frame); err != nil {
		log.Warningf("hip: write frame to bridge: %v", err)
	}
}

// onSessionEstablished is C5 notifying C7 that BEX completed; C7 drains
// the peer's frame queue in FIFO order through C6, per spec §4.7.
func (r *Router) onSessionEstablished(s *Session) {
	ps, ok := r.peerByHIT[s.peerHIT]
	if !ok {
		return
	}
	out, ok := r.db.LookupOut(r.localHIT, s.peerHIT)
	if !ok {
		return
	}
	for _, frame := range ps.queue.Drain() {
		r.encapsulateAndSend(out, ps, frame)
	}
}

func (r *Router) encapsulateAndSend(out *sadb.SA, ps *peerState, frame []byte) {
	dg, err := ah.Encapsulate(r.db, out, frame)
	if err != nil {
		log.Warningf("hip: encapsulate frame to %s: %v", ps.hit, err)
		return
	}
	if err := r.ahConn.WritePacket(dg, &net.IPAddr{IP: ps.locator}); err != nil {
		log.Warningf("hip: send frame to %s: %v", ps.hit, err)
	}
}

// peerFor returns the existing peerState for a HIT, or builds one (seeded
// with the static peer table's locator, if any) and starts its Session.
func (r *Router) peerFor(peerHIT protocol.HIT) *peerState {
	if ps, ok := r.peerByHIT[peerHIT]; ok {
		return ps
	}
	var locator net.IP
	if rec, ok := r.peers.ResolveByHIT(peerHIT); ok {
		locator = rec.LocatorIP
	}
	ps := newPeerState(peerHIT, locator, r.cfg.FrameQueueLen)
	send := func(loc net.IP, payload []byte) error {
		return r.hipConn.WritePacket(payload, &net.IPAddr{IP: loc})
	}
	ps.session = NewSession(r.ctx, r.cfg, r.local, r.peers, r.db, r.timers, r.counters,
		r.localHIT, peerHIT, locator, send, r.sendStatelessR1, r.onSessionEstablished)
	r.peerByHIT[peerHIT] = ps
	r.sessionsByHIT.Store(peerHIT, ps.session)
	go r.watchSession(ps.session)
	return ps
}

// watchSession fans a Session's Fsm events and errors into the worker's
// shared queue, since each Session owns its own Fsm channel but only the
// worker goroutine may call HandleEvent.
func (r *Router) watchSession(s *Session) {
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				return
			}
			select {
			case r.fsmEvents <- fsmEvent{session: s, evt: evt}:
			case <-r.ctx.Done():
				return
			}
		case err := <-s.Errors():
			log.Warningf("hip: session %s: %v", s.peerHIT, err)
		case <-s.Done():
			return
		}
	}
}

// fireTimer is state.Timers' RetransmitFunc: it runs on the timer
// goroutine, so it looks the Session up via sessionsByHIT (safe for a
// concurrent reader) rather than the worker-owned peerByHIT map, and only
// ever posts into the Session's Fsm channel.
func (r *Router) fireTimer(peerHIT protocol.HIT, kind state.RetransmitKind, attempt int) {
	v, ok := r.sessionsByHIT.Load(peerHIT)
	if !ok {
		return
	}
	s := v.(*Session)
	switch kind {
	case state.RetransmitI1:
		s.PostEvent(state.StateEvent{Event: EventTau1Expire, Data: attempt})
	case state.RetransmitI2:
		s.PostEvent(state.StateEvent{Event: EventTau2Expire, Data: attempt})
	}
}
