package state

import (
	"container/heap"
	"sync"
	"time"

	"github.com/hipvpls/core/protocol"
)

// RetransmitKind names which BEX retransmission timer a timer entry
// belongs to, per spec §4.5 (τ₁ for I1, τ₂ for I2).
type RetransmitKind int

const (
	RetransmitI1 RetransmitKind = iota
	RetransmitI2
)

const (
	DefaultTau1 = 2 * time.Second
	DefaultTau2 = 2 * time.Second

	DefaultN1 = 5 // max I1 retransmissions before BEXFailed
	DefaultN2 = 5 // max I2 retransmissions before returning to UNASSOCIATED
)

// timerEntry is one scheduled retransmission, identified by peer HIT so
// the worker can cancel it on BEX completion or teardown.
type timerEntry struct {
	deadline time.Time
	peerHIT  protocol.HIT
	kind     RetransmitKind
	attempt  int
	index    int // heap.Interface bookkeeping
}

// timerHeap is a container/heap.Interface ordered by deadline, giving the
// timer goroutine O(log n) access to the next timer to fire.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// RetransmitFunc is invoked by the timer goroutine when a retransmission
// deadline fires; it posts the corresponding event into the peer's FSM.
type RetransmitFunc func(peerHIT protocol.HIT, kind RetransmitKind, attempt int)

// Timers is the single priority-ordered timer heap owned by the timer
// goroutine described in spec §5: it wakes the protocol worker for BEX
// retransmissions and never lets the worker itself sleep.
type Timers struct {
	mu      sync.Mutex
	heap    timerHeap
	byPeer  map[protocol.HIT]map[RetransmitKind]*timerEntry
	wake    chan struct{}
	fire    RetransmitFunc
	closed  bool
	done    chan struct{}
}

func NewTimers(fire RetransmitFunc) *Timers {
	t := &Timers{
		byPeer: make(map[protocol.HIT]map[RetransmitKind]*timerEntry),
		wake:   make(chan struct{}, 1),
		fire:   fire,
		done:   make(chan struct{}),
	}
	heap.Init(&t.heap)
	return t
}

// Schedule arms (or re-arms) a retransmission timer for peerHIT/kind at
// now+after, replacing any existing timer of the same kind for that peer.
func (t *Timers) Schedule(peerHIT protocol.HIT, kind RetransmitKind, attempt int, after time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.cancelLocked(peerHIT, kind)

	e := &timerEntry{deadline: time.Now().Add(after), peerHIT: peerHIT, kind: kind, attempt: attempt}
	heap.Push(&t.heap, e)
	if t.byPeer[peerHIT] == nil {
		t.byPeer[peerHIT] = make(map[RetransmitKind]*timerEntry)
	}
	t.byPeer[peerHIT][kind] = e

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Cancel stops every pending timer for a peer, per spec §5's "on
// shutdown all timers are cancelled without firing" and BEX completion.
func (t *Timers) Cancel(peerHIT protocol.HIT) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kind := range t.byPeer[peerHIT] {
		t.cancelLocked(peerHIT, kind)
	}
}

func (t *Timers) cancelLocked(peerHIT protocol.HIT, kind RetransmitKind) {
	byKind, ok := t.byPeer[peerHIT]
	if !ok {
		return
	}
	e, ok := byKind[kind]
	if !ok {
		return
	}
	if e.index >= 0 {
		heap.Remove(&t.heap, e.index)
	}
	delete(byKind, kind)
	if len(byKind) == 0 {
		delete(t.byPeer, peerHIT)
	}
}

// Run is the timer goroutine's loop: sleep until the next deadline (or a
// reschedule wakes it early), fire expired entries, repeat. Exits when
// ctx's Done channel closes.
func (t *Timers) Run(done <-chan struct{}) {
	for {
		t.mu.Lock()
		var wait time.Duration
		if t.heap.Len() == 0 {
			wait = time.Hour // idle; woken early by Schedule
		} else {
			wait = time.Until(t.heap[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		t.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-done:
			timer.Stop()
			t.mu.Lock()
			t.closed = true
			t.mu.Unlock()
			return
		case <-t.wake:
			timer.Stop()
		case <-timer.C:
		}
		t.fireExpired()
	}
}

func (t *Timers) fireExpired() {
	now := time.Now()
	for {
		t.mu.Lock()
		if t.heap.Len() == 0 || t.heap[0].deadline.After(now) {
			t.mu.Unlock()
			return
		}
		e := heap.Pop(&t.heap).(*timerEntry)
		if byKind, ok := t.byPeer[e.peerHIT]; ok {
			delete(byKind, e.kind)
			if len(byKind) == 0 {
				delete(t.byPeer, e.peerHIT)
			}
		}
		t.mu.Unlock()
		t.fire(e.peerHIT, e.kind, e.attempt)
	}
}
