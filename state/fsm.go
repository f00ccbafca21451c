// Package state is a small generic finite-state-machine engine: a
// transition table keyed by (state, event) plus a channel-driven event
// loop. It carries no protocol knowledge of its own; the hip package
// supplies the HIP BEX transition tables that give it meaning.
package state

// State is a named FSM state. Concrete states (UNASSOCIATED, I1-SENT,
// ESTABLISHED, ...) are defined by the package that builds the
// transition table, not by this engine.
type State string

// EventType names an event that can trigger a state transition.
type EventType string

// StateEvent is what callers post into the FSM: an event plus whatever
// data the transition's action needs (an inbound message, an error, a
// trigger's target peer).
type StateEvent struct {
	Event EventType
	Data  interface{}
}

// Action runs when a transition fires, before the state changes. It
// returns an error to abort the transition (the FSM stays in its
// current state and the error is delivered to the owner via Errors()).
type Action func(evt StateEvent) error

// Transition describes what happens when Event fires in From: Action
// runs, then the FSM moves to Next.
type Transition struct {
	From   State
	Event  EventType
	Next   State
	Action Action
}

// Table is a set of transitions, typically built by a function like
// InitiatorTransitions(owner) that closes over the owning session so its
// Actions can reach the session's Tkm, SADB, and outgoing channel.
type Table []Transition

type transitionKey struct {
	state State
	event EventType
}

// Fsm is one running instance of a state machine: current State plus an
// event queue. Callers post events with PostEvent from any goroutine;
// HandleEvent (called from the single owning goroutine, per the select
// loop in hip.Router.Run) applies them against the transition table.
type Fsm struct {
	State       State
	transitions map[transitionKey]Transition
	events      chan StateEvent
	done        chan struct{}
	// errors receives aborted-transition errors (an event with no
	// matching transition is ignored); the owner drains it via Errors()
	// the same way it drains Events().
	errors chan error
}

// NewFsm builds an Fsm starting in initialState, merging every Table
// passed in (mirrors the teacher's
// state.NewFsm(state.InitiatorTransitions(o), state.CommonTransitions(o))
// call: role-specific transitions plus transitions common to both
// roles).
func NewFsm(initialState State, tables ...Table) *Fsm {
	f := &Fsm{
		State:       initialState,
		transitions: make(map[transitionKey]Transition),
		events:      make(chan StateEvent, 16),
		done:        make(chan struct{}),
		errors:      make(chan error, 4),
	}
	for _, table := range tables {
		for _, t := range table {
			f.transitions[transitionKey{state: t.From, event: t.Event}] = t
		}
	}
	return f
}

func (f *Fsm) Events() <-chan StateEvent { return f.events }
func (f *Fsm) Errors() <-chan error      { return f.errors }
func (f *Fsm) Done() <-chan struct{}     { return f.done }

// PostEvent enqueues an event for the owning goroutine to handle via
// HandleEvent. Safe to call from the timer goroutine or an I/O goroutine.
func (f *Fsm) PostEvent(evt StateEvent) {
	select {
	case f.events <- evt:
	case <-f.done:
	}
}

// HandleEvent applies evt against the transition table for the current
// state. An event with no matching transition is silently ignored, the
// same "no-op outside defined transitions" behavior the teacher's FSM
// callers rely on (PostEvent is often fired speculatively).
func (f *Fsm) HandleEvent(evt StateEvent) {
	t, ok := f.transitions[transitionKey{state: f.State, event: evt.Event}]
	if !ok {
		return
	}
	if t.Action != nil {
		if err := t.Action(evt); err != nil {
			select {
			case f.errors <- err:
			default:
			}
			return
		}
	}
	f.State = t.Next
}

// Close signals Done and stops the FSM from accepting further events.
func (f *Fsm) Close() {
	select {
	case <-f.done:
	default:
		close(f.done)
	}
}
