package hip

import "github.com/hipvpls/core/state"

// States of spec §4.2's per-peer BEX automaton.
const (
	StateUnassociated state.State = "UNASSOCIATED"
	StateI1Sent       state.State = "I1-SENT"
	StateI2Sent       state.State = "I2-SENT"
	StateR2Sent       state.State = "R2-SENT"
	StateEstablished  state.State = "ESTABLISHED"
	StateClosing      state.State = "CLOSING"
	StateClosed       state.State = "CLOSED"
)

// Events posted into a Session's Fsm, from C7 (Trigger), from the wire
// (the *Rcvd events), from the timer goroutine (the *Expire events), and
// from actions themselves to carry a multi-step outcome across a second
// HandleEvent call (BEXFailed). Established is declared but no code posts
// it and no transition consumes it.
const (
	EventTrigger    state.EventType = "TRIGGER"
	EventI1Rcvd     state.EventType = "I1_RCVD"
	EventR1Rcvd     state.EventType = "R1_RCVD"
	EventI2Rcvd     state.EventType = "I2_RCVD"
	EventR2Rcvd     state.EventType = "R2_RCVD"
	EventTau1Expire state.EventType = "TAU1_EXPIRE"
	EventTau2Expire state.EventType = "TAU2_EXPIRE"
	EventBEXFailed  state.EventType = "BEX_FAILED"
	EventEstablished state.EventType = "ESTABLISHED_EVT"
	EventCloseLocal state.EventType = "CLOSE_LOCAL"
	EventCloseRcvd  state.EventType = "CLOSE_RCVD"
	EventCloseAckRcvd state.EventType = "CLOSE_ACK_RCVD"
)

// InitiatorTransitions is the initiator's half of spec §4.2's transition
// table. Grounded on the teacher's (unavailable in the retrieved
// snapshot) InitiatorTransitions/CommonTransitions pattern referenced
// from initiator.go: state.NewFsm(state.InitiatorTransitions(o),
// state.CommonTransitions(o)).
func InitiatorTransitions(s *Session) state.Table {
	return state.Table{
		{From: StateUnassociated, Event: EventTrigger, Next: StateI1Sent, Action: s.actionSendI1},
		{From: StateI1Sent, Event: EventTau1Expire, Next: StateI1Sent, Action: s.actionRetransmitI1},
		{From: StateI1Sent, Event: EventR1Rcvd, Next: StateI2Sent, Action: s.actionSendI2},
		// Simultaneous BEX, per spec §4.5: a peer we are already
		// initiating to sent us their own I1. Router.handleI1 only ever
		// dispatches an I1 here when a Session for that peer already
		// exists; an unknown peer's I1 never reaches the Fsm at all.
		{From: StateI1Sent, Event: EventI1Rcvd, Next: StateUnassociated, Action: s.actionResolveSimultaneousI1},
		{From: StateI2Sent, Event: EventTau2Expire, Next: StateI2Sent, Action: s.actionRetransmitI2},
		{From: StateI2Sent, Event: EventR2Rcvd, Next: StateEstablished, Action: s.actionInstallSAInitiator},
	}
}

// ResponderTransitions covers the one per-peer state transition a
// responder makes: UNASSOCIATED straight to ESTABLISHED on a verified I2,
// per spec §4.2's "state is allocated only upon a valid I2". R1 itself is
// never built here: Router.sendStatelessR1 (hip/router.go) answers every
// I1 from an unknown peer without ever constructing a Session, per spec
// §4.5/§8's no-per-I1-allocation requirement. StateR2Sent is reserved for
// a future duplicate-I2 retransmission cache (not yet implemented — see
// DESIGN.md) rather than used as a resting state here.
func ResponderTransitions(s *Session) state.Table {
	return state.Table{
		{From: StateUnassociated, Event: EventI2Rcvd, Next: StateEstablished, Action: s.actionInstallSAResponder},
	}
}

// CommonTransitions applies regardless of role: BEX failure and peer- or
// operator-initiated teardown.
func CommonTransitions(s *Session) state.Table {
	return state.Table{
		{From: StateI1Sent, Event: EventBEXFailed, Next: StateUnassociated, Action: s.actionBEXFailed},
		{From: StateI2Sent, Event: EventBEXFailed, Next: StateUnassociated, Action: s.actionBEXFailed},
		{From: StateEstablished, Event: EventCloseLocal, Next: StateClosing, Action: s.actionSendClose},
		{From: StateEstablished, Event: EventCloseRcvd, Next: StateClosed, Action: s.actionHandleCloseRcvd},
		{From: StateClosing, Event: EventCloseAckRcvd, Next: StateClosed, Action: s.actionTeardown},
	}
}
