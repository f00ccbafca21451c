package sadb

import (
	"github.com/hipvpls/core/protocol"
)

// pairKey identifies the (local_hit, peer_hit) scope invariant I2 applies
// to: at most one inbound and one outbound SA at any time.
type pairKey struct {
	local protocol.HIT
	peer  protocol.HIT
}

// SADB is the single-threaded owner of every SA on this router. Callers
// are expected to be the protocol worker goroutine only; like the
// teacher's Session state, it holds no internal locking because only one
// goroutine ever touches it.
type SADB struct {
	byInSPI map[uint32]*SA
	byOutID map[pairKey]*SA
	byInID  map[pairKey]*SA

	// counters are the only fields read from outside the worker
	// goroutine, by the observer; see counters.go.
	counters *Counters
}

func New() *SADB {
	return &SADB{
		byInSPI:  make(map[uint32]*SA),
		byOutID:  make(map[pairKey]*SA),
		byInID:   make(map[pairKey]*SA),
		counters: NewCounters(),
	}
}

func (db *SADB) Counters() *Counters { return db.counters }

// InsertPair atomically installs a bidirectional SA pair at the moment
// BEX reaches ESTABLISHED, per spec §3's SA lifecycle and invariant I1
// (inbound SPI uniqueness).
func (db *SADB) InsertPair(in, out *SA) error {
	if _, exists := db.byInSPI[in.SPI]; exists {
		return protocol.Errf(protocol.ConfigError, "spi %d already in use", in.SPI)
	}
	key := pairKey{local: in.LocalHIT, peer: in.PeerHIT}
	db.byInSPI[in.SPI] = in
	db.byInID[key] = in
	db.byOutID[key] = out
	return nil
}

// LookupIn is C4's `lookup_in(spi)`.
func (db *SADB) LookupIn(spi uint32) (*SA, bool) {
	sa, ok := db.byInSPI[spi]
	return sa, ok
}

// LookupOut is C4's `lookup_out(peer_hit)`, keyed by the (localHIT,
// peerHIT) pair the caller passes in.
func (db *SADB) LookupOut(localHIT, peerHIT protocol.HIT) (*SA, bool) {
	sa, ok := db.byOutID[pairKey{local: localHIT, peer: peerHIT}]
	return sa, ok
}

// DropPair tears down both directions of a peer's SA pair, invoked when
// the HIP state machine re-enters UNASSOCIATED or at shutdown.
func (db *SADB) DropPair(localHIT, peerHIT protocol.HIT) {
	key := pairKey{local: localHIT, peer: peerHIT}
	if in, ok := db.byInID[key]; ok {
		delete(db.byInSPI, in.SPI)
		delete(db.byInID, key)
	}
	delete(db.byOutID, key)
}

// NextSeq is C4's `next_seq(out_sa)`.
func (db *SADB) NextSeq(out *SA) (uint32, error) {
	return out.nextSeq()
}

// CheckAndAdvanceReplay is C4's `check_and_advance_replay(in_sa, seq)`.
// Invariant I4: a sequence number once admitted is never admitted again.
func (db *SADB) CheckAndAdvanceReplay(in *SA, seq uint32) bool {
	return in.checkAndAdvanceReplay(seq)
}

// PrecheckReplay is the tentative half of spec §4.6's two-phase replay
// check (step c): it reports whether seq would be admitted, without
// marking it as seen. ah.Decapsulate commits separately, only after the
// packet's ICV has verified.
func (db *SADB) PrecheckReplay(in *SA, seq uint32) bool {
	return in.precheckReplay(seq)
}

// CommitReplay marks seq as received (spec §4.6 step e). Callers must
// have already called PrecheckReplay(in, seq) and verified the packet's
// ICV.
func (db *SADB) CommitReplay(in *SA, seq uint32) {
	in.commitReplay(seq)
}
