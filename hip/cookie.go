package hip

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/hipvpls/core/crypto"
	"github.com/hipvpls/core/protocol"
)

// puzzleEpochWindow bounds how long a stateless R1's PUZZLE challenge
// stays valid: an answering I2 must arrive within one window of the
// epoch it was issued in, per spec §4.5's "short-lived secret".
const puzzleEpochWindow = 30 * time.Second

// puzzleSecret is the router-wide key behind every stateless R1, per
// spec §4.5/§8: a responder reconstructs a puzzle's RandomI from
// (initiator HIT, responder HIT, epoch) under this secret instead of
// storing anything per I1, so a flood of I1s claiming random HITs cannot
// grow router memory.
type puzzleSecret [32]byte

// newPuzzleSecret draws a fresh router-lifetime secret. crypto/rand.Read
// failing here means the OS entropy source is broken, a condition
// nothing downstream could recover from either.
func newPuzzleSecret() puzzleSecret {
	var s puzzleSecret
	if _, err := rand.Read(s[:]); err != nil {
		panic(err)
	}
	return s
}

// currentEpoch is the coarse time window both the puzzle secret and the
// responder's ephemeral DH keypair are keyed on.
func currentEpoch() uint16 {
	return uint16(time.Now().Unix() / int64(puzzleEpochWindow/time.Second))
}

// randomI derives a puzzle's RandomI for (initiatorHIT, responderHIT) at
// epoch. Calling this twice with the same inputs always yields the same
// bytes, which is what lets a responder verify a solution without ever
// having stored the challenge it issued.
func (s puzzleSecret) randomI(initiatorHIT, responderHIT protocol.HIT, epoch uint16) []byte {
	mac := hmac.New(sha256.New, s[:])
	mac.Write(initiatorHIT[:])
	mac.Write(responderHIT[:])
	var eb [2]byte
	binary.BigEndian.PutUint16(eb[:], epoch)
	mac.Write(eb[:])
	return mac.Sum(nil)[:8]
}

// verify reports whether sol answers a puzzle this secret could have
// issued to initiatorHIT for responderHIT at its claimed epoch, and that
// the epoch is still within one window of now.
func (s puzzleSecret) verify(initiatorHIT, responderHIT protocol.HIT, k uint8, epoch uint16, sol *protocol.SolutionParam) bool {
	now := currentEpoch()
	if epoch != now && epoch != now-1 {
		return false
	}
	want := s.randomI(initiatorHIT, responderHIT, epoch)
	if !hmac.Equal(want, sol.RandomI) {
		return false
	}
	return crypto.PuzzleVerify(sol.RandomI, sol.SolutionJ, int(k), initiatorHIT[:], responderHIT[:])
}

// epochKeyAgreement pairs an ephemeral DH keypair with the epoch it
// answers R1s for.
type epochKeyAgreement struct {
	epoch uint16
	ka    *crypto.KeyAgreement
}

// dhForEpoch returns the DH keypair this router answers every stateless
// R1 with during epoch, generating one lazily and evicting the older of
// at most two cached epochs. Reusing one keypair per window instead of
// minting one per I1 is what keeps the R1 path allocation-free per peer;
// the same cache lets a later I2 recover the private half needed to
// finish the exchange.
func (r *Router) dhForEpoch(epoch uint16) (*crypto.KeyAgreement, error) {
	for i := range r.respDH {
		if r.respDH[i].ka != nil && r.respDH[i].epoch == epoch {
			return r.respDH[i].ka, nil
		}
	}
	ka, err := crypto.NewKeyAgreement(r.cfg.DHGroups[0])
	if err != nil {
		return nil, err
	}
	oldest := 0
	if r.respDH[1].epoch < r.respDH[0].epoch {
		oldest = 1
	}
	r.respDH[oldest] = epochKeyAgreement{epoch: epoch, ka: ka}
	return ka, nil
}
