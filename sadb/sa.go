// Package sadb is the Security Association Database: bidirectional SA
// entries keyed by SPI and by peer HIT, holding keys, sequence counters,
// and the anti-replay window.
package sadb

import (
	"time"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/protocol"
)

type Direction int

const (
	DirIn Direction = iota
	DirOut
)

// DefaultReplayWindow is the bitmap width W of spec §4.4; 64 keeps the
// window a single uint64 while matching common IPsec AH defaults.
const DefaultReplayWindow = 64

// SA is one Security Association, exactly one per direction per peer,
// per spec §3.
type SA struct {
	SPI       uint32
	PeerHIT   protocol.HIT
	LocalHIT  protocol.HIT
	Direction Direction
	HmacID    crypto.HmacId
	HmacKey   []byte

	// EspCipher is negotiated and recorded for wire compatibility but
	// never read by ah.Encapsulate/Decapsulate, per spec §9.
	EspCipher *crypto.EspCipher
	EspKey    []byte

	// SeqOut is the next sequence number to use, for DirOut SAs.
	SeqOut    uint32
	exhausted bool

	// replay state, for DirIn SAs.
	replayHigh   uint32
	replayBitmap uint64
	replayWindow uint32

	CreatedAt time.Time
}

// NewOutboundSA starts seq_out at 1, per spec §4.6's numeric semantics.
func NewOutboundSA(spi uint32, peerHIT, localHIT protocol.HIT, hmacID crypto.HmacId, hmacKey []byte) *SA {
	return &SA{
		SPI:       spi,
		PeerHIT:   peerHIT,
		LocalHIT:  localHIT,
		Direction: DirOut,
		HmacID:    hmacID,
		HmacKey:   hmacKey,
		SeqOut:    1,
		CreatedAt: time.Now(),
	}
}

func NewInboundSA(spi uint32, peerHIT, localHIT protocol.HIT, hmacID crypto.HmacId, hmacKey []byte) *SA {
	return &SA{
		SPI:          spi,
		PeerHIT:      peerHIT,
		LocalHIT:     localHIT,
		Direction:    DirIn,
		HmacID:       hmacID,
		HmacKey:      hmacKey,
		replayWindow: DefaultReplayWindow,
		CreatedAt:    time.Now(),
	}
}

// Exhausted reports whether seq_out has reached the rollover boundary and
// this SA may no longer encapsulate, per spec §4.6.
func (sa *SA) Exhausted() bool { return sa.exhausted }

// nextSeq allocates the next outbound sequence number, marking the SA
// exhausted at the 2^32-1 boundary rather than ever wrapping to 0.
func (sa *SA) nextSeq() (uint32, error) {
	if sa.exhausted {
		return 0, protocol.Errf(protocol.SAExhausted, "spi %d", sa.SPI)
	}
	seq := sa.SeqOut
	if seq == ^uint32(0) {
		sa.exhausted = true
	} else {
		sa.SeqOut++
	}
	return seq, nil
}

// precheckReplay implements spec §4.6 step (c), the tentative half of the
// sliding-bitmap check: seq > H always admits, seq <= H admits only if
// within W of H and not already marked. It never mutates SA state — the
// caller commits separately, after authentication succeeds.
func (sa *SA) precheckReplay(seq uint32) bool {
	if sa.replayHigh == 0 && sa.replayBitmap == 0 {
		return true // first packet on this SA
	}
	if seq > sa.replayHigh {
		return true
	}
	diff := sa.replayHigh - seq
	if diff >= uint32(sa.replayWindow) {
		return false
	}
	bit := uint64(1) << diff
	return sa.replayBitmap&bit == 0
}

// commitReplay implements spec §4.6 step (e): marks seq as received. Must
// only be called after a precheckReplay(seq) that returned true and after
// the packet's ICV has verified; it does not re-run the precheck.
func (sa *SA) commitReplay(seq uint32) {
	if sa.replayHigh == 0 && sa.replayBitmap == 0 {
		sa.replayHigh = seq
		sa.replayBitmap = 1
		return
	}
	if seq > sa.replayHigh {
		shift := seq - sa.replayHigh
		if shift >= uint32(sa.replayWindow) {
			sa.replayBitmap = 0
		} else {
			sa.replayBitmap <<= shift
		}
		sa.replayBitmap |= 1
		sa.replayHigh = seq
		return
	}
	diff := sa.replayHigh - seq
	sa.replayBitmap |= uint64(1) << diff
}

// checkAndAdvanceReplay combines precheck and commit for callers that
// don't need the two-phase split (tests, and any SA use outside the AH
// decapsulation path). Invariant I4: a sequence number once admitted is
// never admitted again.
func (sa *SA) checkAndAdvanceReplay(seq uint32) bool {
	if !sa.precheckReplay(seq) {
		return false
	}
	sa.commitReplay(seq)
	return true
}
