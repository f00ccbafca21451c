// Package hip implements the BEX state machine (C5), the AH-adjacent
// router dispatcher (C7), and the backbone/bridge duplex glue between
// them.
package hip

import (
	"context"
	"crypto/rand"
	"net"

	"github.com/msgboxio/log"
	"github.com/pkg/errors"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/identity"
	"github.com/hipvpls/core/protocol"
	"github.com/hipvpls/core/sadb"
	"github.com/hipvpls/core/state"
)

// SendDatagram hands an encoded HIP control packet to the backbone conn
// for delivery to a peer's locator.
type SendDatagram func(locator net.IP, payload []byte) error

// SendR1Func sends a stateless R1 to peerHIT at locator and returns the
// responder Tkm wrapping whatever ephemeral DH keypair it was built from,
// so a Session that yields a simultaneous-BEX tie-break (actionResolveSimultaneousI1)
// can adopt it and still finish the exchange if the peer's I2 arrives.
type SendR1Func func(peerHIT protocol.HIT, locator net.IP) (*Tkm, error)

// Session is the per-peer BEX automaton of spec §4: Tkm plus Fsm plus
// the outgoing/incoming glue, the same role the teacher's Session plays
// for an IKE SA, narrowed to HIP's stateless-responder / puzzle-gated
// shape.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	*state.Fsm

	cfg       *Config
	local     *identity.LocalIdentity
	peerTable *identity.PeerTable
	db        *sadb.SADB
	timers    *state.Timers
	counters  *sadb.Counters
	send      SendDatagram
	sendR1    SendR1Func

	isInitiator bool
	localHIT    protocol.HIT
	peerHIT     protocol.HIT
	peerLocator net.IP

	tkm          *Tkm
	selectedHMAC crypto.HmacId
	peerSigner   crypto.Signer
	// lastI2 is the I2 last sent, resent on each τ₂ expiry.
	lastI2 *protocol.Message

	// onEstablished is the router's hook to drain the peer's queued
	// frames once an outbound SA exists, per spec §4.7.
	onEstablished func(*Session)
}

// NewSession constructs a UNASSOCIATED session for a peer, wired to send
// outbound HIP datagrams via send and to notify onEstablished once BEX
// completes.
func NewSession(parent context.Context, cfg *Config, local *identity.LocalIdentity, peers *identity.PeerTable, db *sadb.SADB, timers *state.Timers, counters *sadb.Counters, localHIT, peerHIT protocol.HIT, peerLocator net.IP, send SendDatagram, sendR1 SendR1Func, onEstablished func(*Session)) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ctx: ctx, cancel: cancel,
		cfg: cfg, local: local, peerTable: peers, db: db, timers: timers, counters: counters, send: send, sendR1: sendR1,
		localHIT: localHIT, peerHIT: peerHIT, peerLocator: peerLocator,
		onEstablished: onEstablished,
	}
	s.Fsm = state.NewFsm(StateUnassociated,
		InitiatorTransitions(s), ResponderTransitions(s), CommonTransitions(s))
	return s
}

// Trigger is C7 asking this session's FSM to start BEX as initiator.
func (s *Session) Trigger() {
	s.isInitiator = true
	s.PostEvent(state.StateEvent{Event: EventTrigger})
}

// Deliver hands an inbound HIP control message to this session's FSM,
// translating packet type to FSM event the way the teacher's
// handleMessage maps ExchangeType to state.MSG_INIT/MSG_AUTH.
func (s *Session) Deliver(msg *protocol.Message) {
	switch msg.Header.PacketType {
	case protocol.I1:
		s.PostEvent(state.StateEvent{Event: EventI1Rcvd, Data: msg})
	case protocol.R1:
		s.PostEvent(state.StateEvent{Event: EventR1Rcvd, Data: msg})
	case protocol.I2:
		s.PostEvent(state.StateEvent{Event: EventI2Rcvd, Data: msg})
	case protocol.R2:
		s.PostEvent(state.StateEvent{Event: EventR2Rcvd, Data: msg})
	case protocol.CLOSE:
		s.PostEvent(state.StateEvent{Event: EventCloseRcvd, Data: msg})
	case protocol.CLOSEACK:
		s.PostEvent(state.StateEvent{Event: EventCloseAckRcvd, Data: msg})
	}
}

func (s *Session) sendMessage(msg *protocol.Message) error {
	return s.send(s.peerLocator, msg.Encode())
}

// Close tears down the session's SA pair and cancels its retransmission
// timers, mirroring the teacher's Session.Close on the IKE side.
func (s *Session) Close() {
	s.timers.Cancel(s.peerHIT)
	s.db.DropPair(s.localHIT, s.peerHIT)
	s.Fsm.Close()
	s.cancel()
}

// -- initiator actions --

func (s *Session) actionSendI1(evt state.StateEvent) error {
	tkm, err := NewTkmInitiator(s.cfg.DHGroups[0], 0)
	if err != nil {
		return err
	}
	s.tkm = tkm
	s.counters.IncBEXAttempt()
	if err := s.sendMessage(BuildI1(s.localHIT, s.peerHIT)); err != nil {
		return err
	}
	s.timers.Schedule(s.peerHIT, state.RetransmitI1, 1, state.DefaultTau1)
	return nil
}

func (s *Session) actionRetransmitI1(evt state.StateEvent) error {
	attempt, _ := evt.Data.(int)
	if attempt > state.DefaultN1 {
		s.PostEvent(state.StateEvent{Event: EventBEXFailed})
		return errors.New("hip: I1 retransmit limit exceeded")
	}
	if err := s.sendMessage(BuildI1(s.localHIT, s.peerHIT)); err != nil {
		return err
	}
	s.timers.Schedule(s.peerHIT, state.RetransmitI1, attempt+1, state.DefaultTau1)
	return nil
}

func (s *Session) actionSendI2(evt state.StateEvent) error {
	s.timers.Cancel(s.peerHIT)
	msg, ok := evt.Data.(*protocol.Message)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "R1_RCVD event missing message")
	}
	hostID, err := CheckR1(msg)
	if err != nil {
		return err
	}
	s.peerSigner, err = signerFromHostID(hostID)
	if err != nil {
		return err
	}

	dh, ok := msg.Parameters.Get(protocol.ParamDiffieHellman).(*protocol.DiffieHellmanParam)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "R1 missing DIFFIE_HELLMAN")
	}
	hipTransform, ok := msg.Parameters.Get(protocol.ParamHIPTransform).(*protocol.HIPTransformParam)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "R1 missing HIP_TRANSFORM")
	}
	selected, err := s.cfg.SelectHIPTransform(hipTransform.SuiteIDs)
	if err != nil {
		return err
	}
	s.selectedHMAC = selected

	tkm, err := NewTkmInitiator(crypto.GroupId(dh.GroupID), selected)
	if err != nil {
		return err
	}
	s.tkm = tkm
	if err := s.tkm.ComputeShared(dh.PublicValue); err != nil {
		return err
	}

	puzzle, ok := msg.Parameters.Get(protocol.ParamPuzzle).(*protocol.PuzzleParam)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "R1 missing PUZZLE")
	}
	solutionJ, err := crypto.PuzzleSolve(puzzle.RandomI, int(puzzle.K), s.localHIT[:], s.peerHIT[:])
	if err != nil {
		return err
	}
	// Derive from the exact wire bytes I2 is about to echo, so the
	// responder's HKDF salt (computed from the same SOLUTION it receives)
	// matches this one.
	if err := s.tkm.DeriveSAKeys(puzzle.RandomI, solutionJ, s.localHIT, s.peerHIT, crypto.HmacId(selected).ICVLen()); err != nil {
		return err
	}

	i2, err := BuildI2(s.cfg, s.local, s.localHIT, s.peerHIT, s.tkm, puzzle, solutionJ, selected)
	if err != nil {
		return err
	}
	if err := s.sendMessage(i2); err != nil {
		return err
	}
	s.lastI2 = i2
	s.timers.Schedule(s.peerHIT, state.RetransmitI2, 1, state.DefaultTau2)
	return nil
}

func (s *Session) actionRetransmitI2(evt state.StateEvent) error {
	attempt, _ := evt.Data.(int)
	if attempt > state.DefaultN2 {
		s.PostEvent(state.StateEvent{Event: EventBEXFailed})
		return errors.New("hip: I2 retransmit limit exceeded")
	}
	if err := s.sendMessage(s.lastI2); err != nil {
		return err
	}
	s.timers.Schedule(s.peerHIT, state.RetransmitI2, attempt+1, state.DefaultTau2)
	return nil
}

func (s *Session) actionInstallSAInitiator(evt state.StateEvent) error {
	s.timers.Cancel(s.peerHIT)
	msg, ok := evt.Data.(*protocol.Message)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "R2_RCVD event missing message")
	}
	if err := CheckR2(msg, s.tkm, s.peerSigner); err != nil {
		return err
	}
	if err := s.installSAPair(); err != nil {
		return err
	}
	s.counters.IncBEXSuccess()
	log.Infof("hip: BEX established with %s (initiator)", s.peerHIT)
	if s.onEstablished != nil {
		s.onEstablished(s)
	}
	return nil
}

// -- responder actions --

// actionResolveSimultaneousI1 breaks the tie of spec §4.5 when an I1
// arrives for a peer we already initiated to ourselves: the side with the
// numerically larger HIT keeps initiating, the other yields and answers
// the peer's I1 as responder instead. This only ever fires for a peer
// that already has a Session (the router dispatches an unknown peer's I1
// through the fully stateless path in Router.handleI1/sendStatelessR1
// without ever reaching here), so no additional allocation happens on
// either branch.
func (s *Session) actionResolveSimultaneousI1(evt state.StateEvent) error {
	if s.peerHIT.Less(s.localHIT) {
		return errors.New("hip: won simultaneous-BEX tie-break, ignoring peer I1")
	}
	s.timers.Cancel(s.peerHIT)
	tkm, err := s.sendR1(s.peerHIT, s.peerLocator)
	if err != nil {
		return err
	}
	s.tkm = tkm
	return nil
}

func (s *Session) actionInstallSAResponder(evt state.StateEvent) error {
	msg, ok := evt.Data.(*protocol.Message)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "I2_RCVD event missing message")
	}
	dh, ok := msg.Parameters.Get(protocol.ParamDiffieHellman).(*protocol.DiffieHellmanParam)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "I2 missing DIFFIE_HELLMAN")
	}
	hipTransform, ok := msg.Parameters.Get(protocol.ParamHIPTransform).(*protocol.HIPTransformParam)
	if !ok || len(hipTransform.SuiteIDs) == 0 {
		return protocol.Errf(protocol.MalformedPacket, "I2 missing HIP_TRANSFORM")
	}
	selected := crypto.HmacId(hipTransform.SuiteIDs[0])
	s.selectedHMAC = selected
	s.tkm.hmacID = selected

	sol, ok := msg.Parameters.Get(protocol.ParamSolution).(*protocol.SolutionParam)
	if !ok {
		return protocol.Errf(protocol.MalformedPacket, "I2 missing SOLUTION")
	}
	if err := s.tkm.ComputeShared(dh.PublicValue); err != nil {
		return err
	}
	// sol.RandomI/SolutionJ are the literal wire bytes the initiator
	// derived its keys from; using anything else here diverges the two
	// sides' HKDF salts.
	if err := s.tkm.DeriveSAKeys(sol.RandomI, sol.SolutionJ, msg.Header.SenderHIT, s.localHIT, selected.ICVLen()); err != nil {
		return err
	}

	hostID, err := CheckI2(msg, s.tkm)
	if err != nil {
		return err
	}
	s.peerHIT = msg.Header.SenderHIT
	s.peerTable.LearnFromBEX(s.peerHIT, s.peerLocator, hostID.HostIdentity)

	if err := s.installSAPair(); err != nil {
		return err
	}

	r2, err := BuildR2(s.local, s.localHIT, s.peerHIT, s.tkm, selected)
	if err != nil {
		return err
	}
	if err := s.sendMessage(r2); err != nil {
		return err
	}
	s.counters.IncBEXSuccess()
	log.Infof("hip: BEX established with %s (responder)", s.peerHIT)
	if s.onEstablished != nil {
		s.onEstablished(s)
	}
	return nil
}

// installSAPair derives fresh SPIs and installs the (in, out) SA pair
// atomically, per spec §3's SA lifecycle invariant.
func (s *Session) installSAPair() error {
	spiIn, err := newSPI()
	if err != nil {
		return err
	}
	spiOut, err := newSPI()
	if err != nil {
		return err
	}
	in := sadb.NewInboundSA(spiIn, s.peerHIT, s.localHIT, s.selectedHMAC, s.tkm.InboundKey())
	out := sadb.NewOutboundSA(spiOut, s.peerHIT, s.localHIT, s.selectedHMAC, s.tkm.OutboundKey())
	return s.db.InsertPair(in, out)
}

// newSPI draws a random nonzero SPI, the same way a fresh AH SA gets its
// identity on both the teacher's IKE side (random SPI per child SA) and
// spec §4.4.
func newSPI() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	spi := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if spi == 0 {
		spi = 1
	}
	return spi, nil
}

// -- common actions --

func (s *Session) actionBEXFailed(evt state.StateEvent) error {
	s.timers.Cancel(s.peerHIT)
	log.Warningf("hip: BEX failed with %s", s.peerHIT)
	return nil
}

func (s *Session) actionSendClose(evt state.StateEvent) error {
	msg := &protocol.Message{
		Header:     &protocol.Header{PacketType: protocol.CLOSE, SenderHIT: s.localHIT, ReceiverHIT: s.peerHIT},
		Parameters: &protocol.Parameters{},
	}
	if err := appendHMAC(msg, s.tkm.OutboundKey(), s.selectedHMAC); err != nil {
		return err
	}
	return s.sendMessage(msg)
}

func (s *Session) actionHandleCloseRcvd(evt state.StateEvent) error {
	s.db.DropPair(s.localHIT, s.peerHIT)
	msg := &protocol.Message{
		Header:     &protocol.Header{PacketType: protocol.CLOSEACK, SenderHIT: s.localHIT, ReceiverHIT: s.peerHIT},
		Parameters: &protocol.Parameters{},
	}
	return s.sendMessage(msg)
}

func (s *Session) actionTeardown(evt state.StateEvent) error {
	s.db.DropPair(s.localHIT, s.peerHIT)
	s.timers.Cancel(s.peerHIT)
	return nil
}
